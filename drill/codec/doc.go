// Package codec frames the drill protocol over a byte stream.
//
// Every message is a single envelope with a type of "identity", "move" or
// "response". An occupant opens with one identity message carrying its name
// and starting cell, then sends move messages; the server answers each move
// with OK or OCCUPIED and finishes with FREE once the occupant has its mask.
//
// Two encodings are supported. JSON writes one envelope per line:
//
//	{"type":"identity","name":"ana","row":3,"col":1}
//	{"type":"move","row":0,"col":0,"direction":"up"}
//	{"type":"response","row":0,"col":0,"code":"OK"}
//
// Msgpack writes the same envelope as a MessagePack map.
//
// Decoding failures caused by bad input are reported as ErrMalformed; a
// closed or broken connection is reported with the underlying transport error.
package codec
