package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"os"

	"camctl/pkg/storage"
	"camctl/pkg/storage/consts"
	imgutil "camctl/pkg/utils/image"
)

var ErrNoFrames = errors.New("no decodable frames")

// Generate samples grid*grid frames of an MJPEG recording into one preview
// image written next to it. It returns the preview file and the number of
// frames used.
func Generate(video string, grid, cellWidth, quality int) (string, int, error) {
	f, err := os.Open(video)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	chunks, err := indexFrames(f)
	if err != nil {
		return "", 0, fmt.Errorf("index %s: %w", video, err)
	}
	var frames []image.Image
	for _, i := range sample(len(chunks), grid*grid) {
		data, err := readChunk(f, chunks[i])
		if err != nil {
			logger.Warnf("read frame %d of %s: %s", i, video, err)
			continue
		}
		img, err := imgutil.DecodeJPEG(data)
		if err != nil {
			logger.Warnf("decode frame %d of %s: %s", i, video, err)
			continue
		}
		frames = append(frames, img)
	}
	if len(frames) == 0 {
		return "", 0, fmt.Errorf("%s: %w", video, ErrNoFrames)
	}

	b := frames[0].Bounds()
	cellHeight := max(1, cellWidth*b.Dy()/max(1, b.Dx()))
	out := storage.ThumbnailPath(video)
	dst, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, consts.DefaultFilePerm)
	if err != nil {
		return "", 0, err
	}
	if err = imgutil.EncodeJPEG(imgutil.Grid(frames, grid, cellWidth, cellHeight), dst, quality); err != nil {
		dst.Close()
		_ = os.Remove(out)
		return "", 0, fmt.Errorf("encode preview: %w", err)
	}
	if err = dst.Close(); err != nil {
		return "", 0, err
	}

	return out, len(frames), nil
}
