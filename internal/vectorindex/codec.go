package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// On-disk formats. Both files are versioned and little-endian so they
// stay portable across implementations.
//
// Index file:    magic "DSIX", version u32, dim u32, count u64,
//                then count*dim float32 rows in insertion order.
// Metadata file: magic "DSIM", version u32, count u64, then count
//                records of (position u64, idLen u32, id bytes).
const (
	indexMagic    = "DSIX"
	metadataMagic = "DSIM"
	formatVersion = 1

	maxVectorDim  = 1 << 16
	maxVectorRows = 1 << 32
	maxIDLen      = 1 << 10
)

// flatIndex is an in-memory flat vector index. Ownership during a single
// operation is exclusive to that operation; a loaded index is never
// shared across concurrent callers.
type flatIndex struct {
	dim     int
	vectors [][]float32
}

func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

func (idx *flatIndex) count() int {
	return len(idx.vectors)
}

// add appends vectors in order. Every vector must match the index
// dimension.
func (idx *flatIndex) add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != idx.dim {
			return fmt.Errorf("%w: vector has dim %d, index has dim %d", ErrDimensionMismatch, len(v), idx.dim)
		}
	}
	idx.vectors = append(idx.vectors, vectors...)
	return nil
}

// writeIndexFile serializes the index to w.
func writeIndexFile(w io.Writer, idx *flatIndex) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(indexMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(idx.dim)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(idx.vectors))); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, vector := range idx.vectors {
		for _, v := range vector {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// readIndexFile deserializes an index from r, validating the header.
func readIndexFile(r io.Reader) (*flatIndex, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrCorruptIndex, err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, magic)
	}

	var version, dim uint32
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrCorruptIndex, err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, version)
	}
	if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("%w: reading dim: %v", ErrCorruptIndex, err)
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading count: %v", ErrCorruptIndex, err)
	}
	if dim == 0 || dim > maxVectorDim {
		return nil, fmt.Errorf("%w: implausible dim %d", ErrCorruptIndex, dim)
	}
	if count > maxVectorRows {
		return nil, fmt.Errorf("%w: implausible count %d", ErrCorruptIndex, count)
	}

	idx := newFlatIndex(int(dim))
	idx.vectors = make([][]float32, 0, count)
	buf := make([]byte, 4)
	for i := uint64(0); i < count; i++ {
		vector := make([]float32, dim)
		for j := range vector {
			if _, err := io.ReadFull(br, buf); err != nil {
				return nil, fmt.Errorf("%w: truncated vector data: %v", ErrCorruptIndex, err)
			}
			vector[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		idx.vectors = append(idx.vectors, vector)
	}
	return idx, nil
}

// writeMetadataFile serializes the position to vector-id map.
func writeMetadataFile(w io.Writer, metadata map[int]string) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(metadataMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(metadata))); err != nil {
		return err
	}

	// Positions written in ascending order for a stable file image.
	positions := make([]int, 0, len(metadata))
	for pos := range metadata {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	for _, pos := range positions {
		id := metadata[pos]
		if err := binary.Write(bw, binary.LittleEndian, uint64(pos)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(id))); err != nil {
			return err
		}
		if _, err := bw.WriteString(id); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// readMetadataFile deserializes the position to vector-id map.
func readMetadataFile(r io.Reader) (map[int]string, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrCorruptIndex, err)
	}
	if string(magic) != metadataMagic {
		return nil, fmt.Errorf("%w: bad metadata magic %q", ErrCorruptIndex, magic)
	}

	var version uint32
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrCorruptIndex, err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported metadata version %d", ErrCorruptIndex, version)
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading count: %v", ErrCorruptIndex, err)
	}
	if count > maxVectorRows {
		return nil, fmt.Errorf("%w: implausible metadata count %d", ErrCorruptIndex, count)
	}

	metadata := make(map[int]string, count)
	for i := uint64(0); i < count; i++ {
		var pos uint64
		var idLen uint32
		if err := binary.Read(br, binary.LittleEndian, &pos); err != nil {
			return nil, fmt.Errorf("%w: truncated metadata: %v", ErrCorruptIndex, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("%w: truncated metadata: %v", ErrCorruptIndex, err)
		}
		if idLen > maxIDLen {
			return nil, fmt.Errorf("%w: implausible id length %d", ErrCorruptIndex, idLen)
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(br, id); err != nil {
			return nil, fmt.Errorf("%w: truncated metadata id: %v", ErrCorruptIndex, err)
		}
		metadata[int(pos)] = string(id)
	}
	return metadata, nil
}

// loadIndexFromFile opens and parses a tenant index file.
func loadIndexFromFile(path string) (*flatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readIndexFile(f)
}

// loadMetadataFromFile opens and parses a tenant metadata file.
func loadMetadataFromFile(path string) (map[int]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readMetadataFile(f)
}
