// Package modules loads named computation modules on demand and unloads
// them when they fall idle.
//
// A module is registered with a Loader and stays unloaded until the first
// Get. Concurrent Gets for a module that is not loaded collapse into one
// Loader call (singleflight); a failed load is not remembered, so the next
// Get retries. After a module has been requested PreloadThreshold times its
// related modules (Options.Related) are warmed in the background. SweepIdle
// drops instances unused for longer than UnloadAfter, calling Cleanup on
// instances that implement Cleaner.
package modules
