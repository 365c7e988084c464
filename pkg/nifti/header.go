// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and .nii.gz).
package nifti

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the fixed size of a NIfTI-1 header.
	HeaderSize = 348

	// dataOffset is where voxel data starts in files we write: header plus the
	// 4-byte extension flag.
	dataOffset = 352
)

// NIfTI-1 datatype codes.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

// bytesPerVoxel maps supported datatypes to their size.
var bytesPerVoxel = map[int16]int{
	DTUint8:   1,
	DTInt8:    1,
	DTInt16:   2,
	DTUint16:  2,
	DTInt32:   4,
	DTUint32:  4,
	DTFloat32: 4,
	DTFloat64: 8,
}

// Header is the on-disk NIfTI-1 header. Field order and sizes follow the format exactly so
// the struct can be read and written with encoding/binary.
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// readHeader decodes a header, detecting the byte order from sizeof_hdr.
func readHeader(r io.Reader) (*Header, binary.ByteOrder, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, errors.Wrap(err, "reading header")
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[:4]) == HeaderSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[:4]) == HeaderSize:
		order = binary.BigEndian
	default:
		return nil, nil, errors.New("sizeof_hdr is not 348")
	}

	hdr := &Header{}
	if err := binary.Read(bytes.NewReader(raw), order, hdr); err != nil {
		return nil, nil, errors.Wrap(err, "decoding header")
	}
	if string(hdr.Magic[:3]) != "n+1" {
		return nil, nil, errors.Errorf("unsupported magic %q, only single-file NIfTI-1 is supported", hdr.Magic[:3])
	}
	return hdr, order, nil
}

// writeHeader encodes hdr in little-endian order followed by an empty extension flag.
func writeHeader(w io.Writer, hdr *Header) error {
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return errors.Wrap(err, "writing header")
	}
	_, err := w.Write([]byte{0, 0, 0, 0})
	return errors.Wrap(err, "writing extension flag")
}
