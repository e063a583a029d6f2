package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/h2non/bimg"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// TestProcess_StripsMetadataKeepsDimensions tests the sanitize pass.
func TestProcess_StripsMetadataKeepsDimensions(t *testing.T) {
	input := testJPEG(t, 120, 80)

	output, err := Process(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("failed to process image: %v", err)
	}
	if len(output) == 0 {
		t.Fatal("expected non-empty output")
	}

	meta, err := bimg.NewImage(output).Metadata()
	if err != nil {
		t.Fatalf("failed to read processed metadata: %v", err)
	}
	if meta.Size.Width != 120 || meta.Size.Height != 80 {
		t.Errorf("expected 120x80, got %dx%d", meta.Size.Width, meta.Size.Height)
	}
	if meta.EXIF.Make != "" || meta.EXIF.GPSLatitude != "" {
		t.Error("expected EXIF stripped")
	}
}

// TestProcess_RejectsGarbage tests the non-image path.
func TestProcess_RejectsGarbage(t *testing.T) {
	if _, err := Process(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected error for non-image input")
	}
}

// TestThumbnail_DownscalesWideImages tests thumbnail sizing.
func TestThumbnail_DownscalesWideImages(t *testing.T) {
	input := testJPEG(t, 1200, 800)

	thumb, err := Thumbnail(input)
	if err != nil {
		t.Fatalf("failed to render thumbnail: %v", err)
	}

	meta, err := bimg.NewImage(thumb).Metadata()
	if err != nil {
		t.Fatalf("failed to read thumbnail metadata: %v", err)
	}
	if meta.Size.Width != ThumbnailWidth {
		t.Errorf("expected width %d, got %d", ThumbnailWidth, meta.Size.Width)
	}
}
