// Package wire implements the 9P2000.L message set: a bit-exact,
// little-endian binary encoding for the 57 request/reply variants
// described in the protocol, plus the composite types (Qid, Stat,
// Statfs, Dirent, Flock, Getlock) embedded in them.
//
// Messages are represented as plain Go structs rather than as views
// over a byte slice, following the shape of the reference
// implementation's Fcall enum: a Message is decoded once into its
// fields (the Data of Rread and Twrite borrows from the read buffer;
// see Clone) and then handled like any other Go value. Marshal and
// Unmarshal do all encoding and decoding, except that
// transport.Writer packs the header of Twrite and Rread frames itself
// so that their data can be written separately.
package wire
