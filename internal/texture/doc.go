// Package texture owns device pixel storage.
//
// Ownership boundary:
// - the fixed id table (framebuffer, host textures, internal swap slots)
// - pool selection and release for texture backing memory
// - define, append, composite and swap on stored textures
//
// Callers hold *Texture pointers only for the duration of one operation;
// any Define, Swap or Close may replace them.
package texture
