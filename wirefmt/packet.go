// File: wirefmt/packet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package wirefmt implements the wire-form packet layout shared by every
// transmission that crosses a netchannel.Channel: a universal header, a
// kind-specific header, and a payload, laid out exactly as described by
// the CORE spec — little-endian, with a self-describing header-size prefix
// so the layout can grow without breaking older readers.

package wirefmt

import (
	"encoding/binary"
	"errors"
	"math"
)

// Kind distinguishes a DATA packet (carries transmission payload) from a
// COMM packet (carries an ACK/NACK presence bitmap for the transport
// layer's retransmission protocol, which is out of this module's scope).
type Kind uint8

const (
	KindData Kind = 0
	KindComm Kind = 1
)

func (k Kind) String() string {
	if k == KindComm {
		return "COMM"
	}
	return "DATA"
}

// UniversalHeaderBytes and the two kind-specific header sizes are fixed in
// this implementation (16 bytes each), matching the original transport
// packet layout: 8 bytes declaring the header's own size, plus two 4-byte
// fields. Implementations are free to grow these; the size prefix exists
// precisely so older code keeps working if they do.
const (
	UniversalHeaderBytes = 16
	DataHeaderBytes      = 16
	CommHeaderBytes      = 16

	transmissionIDMask = 0x7FFFFFFF // 31 bits
	kindBit            = 0x80000000 // top bit of the packed transmission_id/kind field
)

// ErrHeaderTooShort is returned when a buffer is too small to hold a header.
var ErrHeaderTooShort = errors.New("wirefmt: buffer too short for header")

// ErrSizeOverflow is returned by ValidateTotalSize when header/payload sizes
// would overflow a uint64 or exceed the configured maximum packet size.
var ErrSizeOverflow = errors.New("wirefmt: packet size overflow")

// UniversalHeader is present on every packet, data or comm.
type UniversalHeader struct {
	HeaderBytes    uint64 // size of this header, including itself
	TransmissionID uint32 // 31 bits significant
	Kind           Kind
	PayloadBytes   uint32
}

// DataHeader follows the UniversalHeader on a DATA packet.
type DataHeader struct {
	HeaderBytes           uint64
	IndexInTransmission   uint32
	PacketsInTransmission uint32
}

// CommHeader follows the UniversalHeader on a COMM packet.
type CommHeader struct {
	HeaderBytes      uint64
	FirstPacketIndex uint32
	BitsInBitmap     uint32
}

// EncodeUniversalHeader writes h into dst[0:UniversalHeaderBytes].
func EncodeUniversalHeader(dst []byte, h UniversalHeader) error {
	if len(dst) < UniversalHeaderBytes {
		return ErrHeaderTooShort
	}
	binary.LittleEndian.PutUint64(dst[0:8], h.HeaderBytes)
	packed := h.TransmissionID & transmissionIDMask
	if h.Kind == KindComm {
		packed |= kindBit
	}
	binary.LittleEndian.PutUint32(dst[8:12], packed)
	binary.LittleEndian.PutUint32(dst[12:16], h.PayloadBytes)
	return nil
}

// DecodeUniversalHeader reads a UniversalHeader from src.
func DecodeUniversalHeader(src []byte) (UniversalHeader, error) {
	if len(src) < UniversalHeaderBytes {
		return UniversalHeader{}, ErrHeaderTooShort
	}
	packed := binary.LittleEndian.Uint32(src[8:12])
	kind := KindData
	if packed&kindBit != 0 {
		kind = KindComm
	}
	return UniversalHeader{
		HeaderBytes:    binary.LittleEndian.Uint64(src[0:8]),
		TransmissionID: packed & transmissionIDMask,
		Kind:           kind,
		PayloadBytes:   binary.LittleEndian.Uint32(src[12:16]),
	}, nil
}

// EncodeDataHeader writes h into dst[0:DataHeaderBytes].
func EncodeDataHeader(dst []byte, h DataHeader) error {
	if len(dst) < DataHeaderBytes {
		return ErrHeaderTooShort
	}
	binary.LittleEndian.PutUint64(dst[0:8], h.HeaderBytes)
	binary.LittleEndian.PutUint32(dst[8:12], h.IndexInTransmission)
	binary.LittleEndian.PutUint32(dst[12:16], h.PacketsInTransmission)
	return nil
}

// DecodeDataHeader reads a DataHeader from src.
func DecodeDataHeader(src []byte) (DataHeader, error) {
	if len(src) < DataHeaderBytes {
		return DataHeader{}, ErrHeaderTooShort
	}
	return DataHeader{
		HeaderBytes:           binary.LittleEndian.Uint64(src[0:8]),
		IndexInTransmission:   binary.LittleEndian.Uint32(src[8:12]),
		PacketsInTransmission: binary.LittleEndian.Uint32(src[12:16]),
	}, nil
}

// EncodeCommHeader writes h into dst[0:CommHeaderBytes].
func EncodeCommHeader(dst []byte, h CommHeader) error {
	if len(dst) < CommHeaderBytes {
		return ErrHeaderTooShort
	}
	binary.LittleEndian.PutUint64(dst[0:8], h.HeaderBytes)
	binary.LittleEndian.PutUint32(dst[8:12], h.FirstPacketIndex)
	binary.LittleEndian.PutUint32(dst[12:16], h.BitsInBitmap)
	return nil
}

// DecodeCommHeader reads a CommHeader from src.
func DecodeCommHeader(src []byte) (CommHeader, error) {
	if len(src) < CommHeaderBytes {
		return CommHeader{}, ErrHeaderTooShort
	}
	return CommHeader{
		HeaderBytes:      binary.LittleEndian.Uint64(src[0:8]),
		FirstPacketIndex: binary.LittleEndian.Uint32(src[8:12]),
		BitsInBitmap:     binary.LittleEndian.Uint32(src[12:16]),
	}, nil
}

// EncodeDataPacket lays out a complete DATA packet into dst and returns the
// total number of bytes written. dst must be at least
// UniversalHeaderBytes+DataHeaderBytes+len(payload) bytes.
func EncodeDataPacket(dst []byte, transmissionID, index, packetsInTransmission uint32, payload []byte) (int, error) {
	total := UniversalHeaderBytes + DataHeaderBytes + len(payload)
	if len(dst) < total {
		return 0, ErrHeaderTooShort
	}
	if err := EncodeUniversalHeader(dst, UniversalHeader{
		HeaderBytes:    UniversalHeaderBytes,
		TransmissionID: transmissionID,
		Kind:           KindData,
		PayloadBytes:   uint32(len(payload)),
	}); err != nil {
		return 0, err
	}
	if err := EncodeDataHeader(dst[UniversalHeaderBytes:], DataHeader{
		HeaderBytes:           DataHeaderBytes,
		IndexInTransmission:   index,
		PacketsInTransmission: packetsInTransmission,
	}); err != nil {
		return 0, err
	}
	copy(dst[UniversalHeaderBytes+DataHeaderBytes:], payload)
	return total, nil
}

// EncodeCommPacket lays out a complete COMM packet carrying an ACK/NACK
// bitmap into dst.
func EncodeCommPacket(dst []byte, transmissionID, firstPacketIndex, bitsInBitmap uint32, bitmap []byte) (int, error) {
	total := UniversalHeaderBytes + CommHeaderBytes + len(bitmap)
	if len(dst) < total {
		return 0, ErrHeaderTooShort
	}
	if err := EncodeUniversalHeader(dst, UniversalHeader{
		HeaderBytes:    UniversalHeaderBytes,
		TransmissionID: transmissionID,
		Kind:           KindComm,
		PayloadBytes:   uint32(len(bitmap)),
	}); err != nil {
		return 0, err
	}
	if err := EncodeCommHeader(dst[UniversalHeaderBytes:], CommHeader{
		HeaderBytes:      CommHeaderBytes,
		FirstPacketIndex: firstPacketIndex,
		BitsInBitmap:     bitsInBitmap,
	}); err != nil {
		return 0, err
	}
	copy(dst[UniversalHeaderBytes+CommHeaderBytes:], bitmap)
	return total, nil
}

// BitmapBytesFor returns ceil(bits/8), the byte length of a packed presence
// bitmap covering the given number of bits.
func BitmapBytesFor(bits uint32) uint32 {
	return (bits + 7) / 8
}

// ValidateTotalSize checks that the sum of the three region sizes does not
// wrap a uint64 and does not exceed maxTotal.
func ValidateTotalSize(universalHeaderBytes, kindHeaderBytes, payloadBytes uint64, maxTotal uint64) (uint64, error) {
	if universalHeaderBytes > math.MaxUint64-kindHeaderBytes {
		return 0, ErrSizeOverflow
	}
	sum := universalHeaderBytes + kindHeaderBytes
	if payloadBytes > math.MaxUint64-sum {
		return 0, ErrSizeOverflow
	}
	sum += payloadBytes
	if sum > maxTotal {
		return 0, ErrSizeOverflow
	}
	return sum, nil
}
