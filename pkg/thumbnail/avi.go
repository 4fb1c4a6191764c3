package thumbnail

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrNotAVI = errors.New("not an AVI file")

// chunk locates one compressed video frame inside an AVI file.
type chunk struct {
	off  int64
	size int64
}

// indexFrames walks the RIFF tree of an AVI file and returns the video
// frame chunks of the movi list in file order.
func indexFrames(f *os.File) ([]chunk, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "AVI " {
		return nil, ErrNotAVI
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return walk(f, 12, info.Size())
}

func walk(r io.ReaderAt, off, end int64) ([]chunk, error) {
	var (
		frames []chunk
		hdr    [8]byte
		typ    [4]byte
	)
	for off+8 <= end {
		if _, err := r.ReadAt(hdr[:], off); err != nil {
			return frames, fmt.Errorf("read chunk at %d: %w", off, err)
		}
		id := string(hdr[:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))
		body := off + 8

		switch {
		case id == "LIST":
			if _, err := r.ReadAt(typ[:], body); err != nil {
				return frames, fmt.Errorf("read list type at %d: %w", body, err)
			}
			if string(typ[:]) == "movi" {
				// an unfinished recording never got its list size written
				listEnd := body + size
				if size == 0 || listEnd > end {
					listEnd = end
				}
				sub, err := walk(r, body+4, listEnd)
				frames = append(frames, sub...)
				if err != nil {
					return frames, err
				}
				if size == 0 {
					return frames, nil
				}
			}
		case id[2:] == "dc" || id[2:] == "db":
			if body+size <= end {
				frames = append(frames, chunk{off: body, size: size})
			}
		}
		off = body + size + size&1
	}

	return frames, nil
}

func readChunk(r io.ReaderAt, c chunk) ([]byte, error) {
	buf := make([]byte, c.size)
	if _, err := r.ReadAt(buf, c.off); err != nil {
		return nil, err
	}

	return buf, nil
}

// sample picks n indices spread evenly over total frames, taking the middle
// of each span.
func sample(total, n int) []int {
	if total <= 0 || n <= 0 {
		return nil
	}
	if total <= n {
		res := make([]int, total)
		for i := range res {
			res[i] = i
		}
		return res
	}
	res := make([]int, n)
	for i := range res {
		res[i] = (2*i + 1) * total / (2 * n)
	}

	return res
}
