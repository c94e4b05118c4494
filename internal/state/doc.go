// Package state provides typed views over the untyped result mappings bulbs
// return, decoded with mapstructure. Keys without a named field are kept in
// Extra so newer firmware fields are never lost.
package state
