package nifti

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"eggsplit/internal/models"
)

// Image is a decoded NIfTI file.
type Image struct {
	Header *Header
	Volume *models.Volume
}

// IsGzip reports whether path names a compressed volume.
func IsGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// LoadVolume reads the voxel data of a 3D NIfTI file.
func LoadVolume(path string) (*models.Volume, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return img.Volume, nil
}

// Load reads a 3D NIfTI-1 file. Volume axis 0 (Z) is the file's i axis, axis 1 (Y) is j and
// axis 2 (X) is k. Scaling from scl_slope/scl_inter is applied when the slope is non-zero.
//
// Errors are kinded: NotFound for a missing path, Format for anything that does not decode
// as NIfTI-1, Dimension when the image is not exactly 3-dimensional.
func Load(path string) (*Image, error) {
	const op = "load"
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.Errorf(models.KindNotFound, op, "NIfTI file not found: %s", path)
		}
		return nil, models.WrapError(models.KindIO, op, errors.Wrapf(err, "opening %s", path))
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if IsGzip(path) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, models.WrapError(models.KindFormat, op, errors.Wrapf(err, "%s is not gzip data", path))
		}
		defer gz.Close()
		r = gz
	}

	hdr, order, err := readHeader(r)
	if err != nil {
		return nil, models.WrapError(models.KindFormat, op, errors.Wrapf(err, "%s is not a valid NIfTI file", path))
	}
	if hdr.Dim[0] != 3 {
		return nil, models.Errorf(models.KindDimension, op, "expected 3D volume, but %s is %dD", path, hdr.Dim[0])
	}

	ni, nj, nk := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	if ni <= 0 || nj <= 0 || nk <= 0 {
		return nil, models.Errorf(models.KindFormat, op, "%s has invalid dimensions %v", path, hdr.Dim[1:4])
	}
	size, ok := bytesPerVoxel[hdr.Datatype]
	if !ok {
		return nil, models.Errorf(models.KindFormat, op, "%s has unsupported datatype %d", path, hdr.Datatype)
	}

	offset := int64(hdr.VoxOffset)
	if offset < HeaderSize {
		return nil, models.Errorf(models.KindFormat, op, "%s has vox_offset %d inside the header", path, offset)
	}
	if _, err := io.CopyN(io.Discard, r, offset-HeaderSize); err != nil {
		return nil, models.WrapError(models.KindFormat, op, errors.Wrapf(err, "skipping extensions of %s", path))
	}

	count := ni * nj * nk
	raw := make([]byte, count*size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, models.WrapError(models.KindFormat, op, errors.Wrapf(err, "%s is truncated", path))
	}

	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope == 0 || math.IsNaN(slope) {
		slope, inter = 1, 0
	}

	vol := models.NewVolume(ni, nj, nk)
	vol.VoxelSize.Z = float64(hdr.Pixdim[1])
	vol.VoxelSize.Y = float64(hdr.Pixdim[2])
	vol.VoxelSize.X = float64(hdr.Pixdim[3])

	// disk order is i fastest
	n := 0
	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				value := decodeVoxel(raw[n*size:(n+1)*size], hdr.Datatype, order)
				vol.Set(i, j, k, value*slope+inter)
				n++
			}
		}
	}
	return &Image{Header: hdr, Volume: vol}, nil
}

func decodeVoxel(b []byte, datatype int16, order binary.ByteOrder) float64 {
	switch datatype {
	case DTUint8:
		return float64(b[0])
	case DTInt8:
		return float64(int8(b[0]))
	case DTInt16:
		return float64(int16(order.Uint16(b)))
	case DTUint16:
		return float64(order.Uint16(b))
	case DTInt32:
		return float64(int32(order.Uint32(b)))
	case DTUint32:
		return float64(order.Uint32(b))
	case DTFloat32:
		return float64(math.Float32frombits(order.Uint32(b)))
	default:
		return math.Float64frombits(order.Uint64(b))
	}
}

// ReadHeader returns only the header of a NIfTI file.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if IsGzip(path) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	hdr, _, err := readHeader(r)
	return hdr, err
}

// NewHeader returns a minimal header for volume with unit voxel size and no orientation.
func NewHeader(volume *models.Volume) *Header {
	hdr := &Header{
		SizeofHdr: HeaderSize,
		Regular:   'r',
		Pixdim:    [8]float32{1, 1, 1, 1, 1, 1, 1, 1},
		XYZTUnits: 2, // millimetres
	}
	if volume.VoxelSize.Z > 0 {
		hdr.Pixdim[1] = float32(volume.VoxelSize.Z)
		hdr.Pixdim[2] = float32(volume.VoxelSize.Y)
		hdr.Pixdim[3] = float32(volume.VoxelSize.X)
	}
	return hdr
}

// Save writes volume to outputPath reusing the orientation metadata (qform, sform, units,
// description) of the NIfTI file at referencePath. Missing parent directories are created.
// Every failure is an IO error wrapping the cause.
func Save(volume *models.Volume, referencePath, outputPath string) error {
	ref, err := ReadHeader(referencePath)
	if err != nil {
		return models.WrapError(models.KindIO, "save", errors.Wrapf(err, "loading reference metadata from %s", referencePath))
	}
	return Write(outputPath, ref, volume)
}

// Write encodes volume as float32 with identity scaling, using hdr as the template for every
// field that does not describe the data layout.
func Write(outputPath string, hdr *Header, volume *models.Volume) error {
	const op = "save"
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return models.WrapError(models.KindIO, op, errors.Wrapf(err, "creating output directory for %s", outputPath))
	}
	for _, d := range []int{volume.Depth, volume.Height, volume.Width} {
		if d <= 0 || d > math.MaxInt16 {
			return models.Errorf(models.KindIO, op, "cannot store extent %d in a NIfTI-1 header", d)
		}
	}

	out := *hdr
	out.SizeofHdr = HeaderSize
	out.Dim = [8]int16{3, int16(volume.Depth), int16(volume.Height), int16(volume.Width), 1, 1, 1, 1}
	out.Datatype = DTFloat32
	out.Bitpix = 32
	out.VoxOffset = dataOffset
	out.SclSlope = 1
	out.SclInter = 0
	out.CalMax, out.CalMin = 0, 0
	out.GLMax, out.GLMin = 0, 0
	out.Magic = [4]byte{'n', '+', '1', 0}

	f, err := os.Create(outputPath)
	if err != nil {
		return models.WrapError(models.KindIO, op, errors.Wrapf(err, "creating %s", outputPath))
	}

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if IsGzip(outputPath) {
		gz = gzip.NewWriter(bw)
		w = gz
	}

	err = writeHeader(w, &out)
	if err == nil {
		err = writeVoxels(w, volume)
	}
	if gz != nil {
		err = multierr.Append(err, gz.Close())
	}
	err = multierr.Append(err, bw.Flush())
	err = multierr.Append(err, f.Close())
	if err != nil {
		return models.WrapError(models.KindIO, op, errors.Wrapf(err, "failed to save NIfTI file %s", outputPath))
	}
	return nil
}

// writeVoxels emits the volume in disk order (i fastest) as little-endian float32.
func writeVoxels(w io.Writer, volume *models.Volume) error {
	row := make([]byte, 4*volume.Depth)
	for k := 0; k < volume.Width; k++ {
		for j := 0; j < volume.Height; j++ {
			for i := 0; i < volume.Depth; i++ {
				binary.LittleEndian.PutUint32(row[4*i:], math.Float32bits(float32(volume.At(i, j, k))))
			}
			if _, err := w.Write(row); err != nil {
				return errors.Wrap(err, "writing voxel data")
			}
		}
	}
	return nil
}
