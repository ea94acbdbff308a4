// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// scenesync-sim replays a scripted editing session across several
// headless editors sharing one in-process server, then prints every
// editor's scene tree so the replicas can be compared.
//
// A scenario is a YAML file naming the editors and the edits each one
// makes:
//
//	level: Main
//	clients: [alice, bob]
//	steps:
//	  - client: alice
//	    spawn: {class: StaticMeshActor, name: Crate, folder: Props}
//	  - ticks: 5
//	  - client: bob
//	    select: Crate
//	  - client: bob
//	    move: {actor: Crate, location: [0, 0, 100]}
//
// The first client owns the level and uploads it; later clients join
// with empty worlds and receive it. Steps act on actors by name, so a
// step that relabels an actor changes the name later steps must use.
// Nothing ticks between edits unless a ticks step asks for it; the
// runner settles every client after the last step.
//
// Actors locked by an editor are coloured with that editor's holder
// color when stdout is a terminal. Colour is controlled with --color.
package main
