package dataset

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ImageList is a set of image files with multi-hot labels, read from a list
// file whose lines are "relative/path l1 l2 ... lN".
type ImageList struct {
	root   string
	paths  []string
	labels [][]float64
	nClass int
}

// LoadImageList parses listFile; image paths are resolved against root.
func LoadImageList(root, listFile string, nClass int) (*ImageList, error) {
	file, err := os.Open(listFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ds := &ImageList{root: root, nClass: nClass}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != nClass+1 {
			return nil, fmt.Errorf("%s:%d: %d label values, want %d: %w", listFile, line, len(fields)-1, nClass, ErrShape)
		}
		label := make([]float64, nClass)
		for k, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", listFile, line, err)
			}
			label[k] = v
		}
		ds.paths = append(ds.paths, fields[0])
		ds.labels = append(ds.labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *ImageList) Len() int              { return len(ds.paths) }
func (ds *ImageList) Classes() int          { return ds.nClass }
func (ds *ImageList) Label(i int) []float64 { return ds.labels[i] }
func (ds *ImageList) Path(i int) string     { return filepath.Join(ds.root, ds.paths[i]) }

func (ds *ImageList) Image(i int) (image.Image, error) {
	file, err := os.Open(ds.Path(i))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ds.Path(i), err)
	}
	return img, nil
}
