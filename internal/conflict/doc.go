// Package conflict decides, per entity type, whose copy wins when a local
// record and its remote snapshot diverge.
//
// Detection and resolution are separate pure functions. Sessions favour local
// captured media, then the newer edit, merging in remote-derived scores the
// local copy lacks. Phase annotations always keep the local copy. Resolutions
// are tagged variants (UseLocal, UseServer, Merge, Manual) matched with type
// switches.
package conflict
