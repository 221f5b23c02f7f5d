// Package entity correlates host entities with the managed instances that
// script them.
//
// A Host delivers lifecycle notifications to its Listener on the update
// thread. The Bridge is that listener: on spawn of a registered scripted
// class it constructs an instance with the default constructor and calls
// the optional InternalSpawn(uint) hook; on remove it calls the optional
// OnRemove() hook and releases the instance.
//
// Bindings exposes host entity operations (spawn, remove, find, transform,
// flags, slots, attachment materials) to managed code as named natives.
package entity
