package segmentation

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"activesurface/internal/models"
)

// LoadSlices reads every JPEG or PNG image in dir, ordered by the number in
// the filename, and stacks them into a volume whose z voxel size is sliceGap.
// All slices must have the dimensions of the first one.
func LoadSlices(dir string, sliceGap float64) (*models.Volume, []models.Slice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	// Filter image files
	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, nil, fmt.Errorf("no JPG or PNG images found in %s", dir)
	}

	// Slice order follows the number embedded in the filename
	sort.SliceStable(imageFiles, func(i, j int) bool {
		return extractNumber(imageFiles[i]) < extractNumber(imageFiles[j])
	})

	slices := make([]models.Slice, 0, len(imageFiles))
	for i, filename := range imageFiles {
		img, err := loadImage(filepath.Join(dir, filename))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load image %s: %w", filename, err)
		}
		if i > 0 && img.Bounds().Size() != slices[0].Image.Bounds().Size() {
			return nil, nil, fmt.Errorf("slice %s is %v, expected %v",
				filename, img.Bounds().Size(), slices[0].Image.Bounds().Size())
		}
		slices = append(slices, models.Slice{Image: img, Index: i, Filename: filename})
	}

	bounds := slices[0].Image.Bounds()
	vol := models.NewVolume(bounds.Dx(), bounds.Dy(), len(slices))
	vol.VoxelSize.Z = sliceGap
	for z, s := range slices {
		imageIntoVolume(s.Image, vol, z)
	}
	return vol, slices, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// loadImage decodes a JPEG or PNG file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// imageIntoVolume writes the gray level of img, in [0, 1], into slice z
func imageIntoVolume(img image.Image, vol *models.Volume, z int) {
	bounds := img.Bounds()
	for y := 0; y < vol.Height; y++ {
		for x := 0; x < vol.Width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			vol.Set(x, y, z, float64(g.Y)/65535.0)
		}
	}
}
