// Package smbenc provides binary encoding and decoding utilities for SMB2/3
// wire structures.
//
// Reader and Writer accumulate the first error: callers perform a sequence of
// reads or writes and check Err once at the end.
//
//	r := smbenc.NewReader(data)
//	next := r.ReadUint32()
//	ifIndex := r.ReadUint32()
//	if r.Err() != nil {
//	    return r.Err()
//	}
//
// Integers are little-endian unless the method name says otherwise. The BE
// variants exist for embedded socket addresses, which carry ports in network
// byte order.
package smbenc
