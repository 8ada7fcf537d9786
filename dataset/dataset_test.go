package dataset

import (
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		nClass int
		topK   int
		format Format
	}{
		{"cifar10", 10, -1, FormatCIFAR10},
		{"cifar10-1", 10, -1, FormatCIFAR10},
		{"cifar10-2", 10, -1, FormatCIFAR10},
		{"nuswide_21", 21, 5000, FormatImageList},
		{"nuswide_81_m", 81, 5000, FormatImageList},
		{"coco", 80, 5000, FormatImageList},
		{"imagenet", 100, 1000, FormatImageList},
		{"mirflickr", 38, -1, FormatImageList},
		{"voc2012", 20, -1, FormatImageList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Lookup(tt.name, "/data")
			require.NoError(t, err)
			assert.Equal(t, tt.nClass, info.NClass)
			assert.Equal(t, tt.topK, info.TopK)
			assert.Equal(t, tt.format, info.Format)

			again, err := Lookup(tt.name, "/data")
			require.NoError(t, err)
			assert.Equal(t, info, again)
		})
	}

	_, err := Lookup("mnist", "/data")
	assert.ErrorIs(t, err, ErrUnknownDataset)
	assert.Contains(t, Names(), "coco")
}

func TestNewMemoryValidates(t *testing.T) {
	_, err := NewMemory([]int{2}, [][]float32{{1, 2}, {3}}, [][]float64{{1}, {0}})
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewMemory([]int{2}, [][]float32{{1, 2}}, [][]float64{{1}, {0}})
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewMemory([]int{1}, [][]float32{{1}, {2}}, [][]float64{{1, 0}, {0}})
	assert.ErrorIs(t, err, ErrShape)

	m, err := NewMemory([]int{1, 2}, [][]float32{{1, 2}, {3, 4}}, [][]float64{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2, m.Classes())
	_, _, err = m.Sample(2, nil)
	assert.ErrorIs(t, err, ErrShape)
}

func TestOneHot(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 1, 0}, OneHot(2, 4))
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestTransformNormalises(t *testing.T) {
	tf := NewTransform(8, 4, false)
	assert.Equal(t, []int{3, 4, 4}, tf.Shape())

	out := tf.Apply(solid(8, 8, color.RGBA{255, 0, 255, 255}), nil)
	require.Len(t, out, 3*16)
	assert.InDelta(t, (1-0.485)/0.229, out[0], 1e-5)
	assert.InDelta(t, (0-0.456)/0.224, out[16], 1e-5)
	assert.InDelta(t, (1-0.406)/0.225, out[32], 1e-5)
}

func TestTransformResizes(t *testing.T) {
	tf := NewTransform(6, 6, false)
	out := tf.Apply(solid(20, 12, color.RGBA{128, 128, 128, 255}), nil)
	require.Len(t, out, 3*36)
	want := (float32(128)/255 - 0.485) / 0.229
	assert.InDelta(t, want, out[0], 0.02)
}

func TestTransformCenterCropAndFlip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 60), 0, 0, 255})
		}
	}
	tf := Transform{Resize: 4, Crop: 2, Mean: [3]float32{}, Std: [3]float32{1, 1, 1}}
	out := tf.Apply(img, nil)
	assert.InDelta(t, 60.0/255, out[0], 1e-6, "center crop starts at x=1")
	assert.InDelta(t, 120.0/255, out[1], 1e-6)

	tf.Train = true
	seen := map[bool]bool{}
	for seed := int64(0); seed < 32; seed++ {
		out := tf.Apply(img, rand.New(rand.NewSource(seed)))
		seen[out[0] > out[1]] = true
	}
	assert.True(t, seen[true], "some crops are flipped")
	assert.True(t, seen[false], "some crops are not flipped")
}

type classes struct {
	ids []int
	n   int
}

func (c classes) Len() int     { return len(c.ids) }
func (c classes) Classes() int { return c.n }
func (c classes) Class(i int) int {
	return c.ids[i]
}
func (c classes) Label(i int) []float64 { return OneHot(c.ids[i], c.n) }
func (c classes) Image(i int) (image.Image, error) {
	return solid(2, 2, color.RGBA{uint8(i), 0, 0, 255}), nil
}

func TestSplitByClass(t *testing.T) {
	src := classes{n: 3}
	for i := 0; i < 30; i++ {
		src.ids = append(src.ids, i%3)
	}
	opts := Options{Resize: 2, Crop: 2, Seed: 1}

	tests := []struct {
		description string
		info        Info
		database    int
	}{
		{"rest", Info{testPerClass: 2, trainPerClass: 3}, 15},
		{"rest and train", Info{testPerClass: 2, trainPerClass: 3, databaseWithTrain: true}, 24},
		{"train only", Info{testPerClass: 2, trainPerClass: 3, databaseIsTrain: true}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			splits, err := SplitByClass(src, tt.info, opts)
			require.NoError(t, err)
			assert.Equal(t, 6, splits.Test.Len())
			assert.Equal(t, 9, splits.Train.Len())
			assert.Equal(t, tt.database, splits.Database.Len())

			test := splits.Test.(*Subset).Indices()
			seen := map[int]bool{}
			for _, i := range test {
				seen[i] = true
			}
			for _, i := range splits.Database.(*Subset).Indices() {
				assert.False(t, seen[i], "database never contains test sample %d", i)
			}

			d := splits.Derived(Info{NClass: 3, TopK: -1, Path: "p"})
			assert.Equal(t, 9, d.NumTrain)
			assert.Equal(t, 6, d.NumTest)
			assert.Equal(t, tt.database, d.NumDatabase)
		})
	}

	a, err := SplitByClass(src, tests[0].info, opts)
	require.NoError(t, err)
	b, err := SplitByClass(src, tests[0].info, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Train.(*Subset).Indices(), b.Train.(*Subset).Indices(), "seeded split is reproducible")

	_, err = SplitByClass(src, Info{testPerClass: 5, trainPerClass: 6}, opts)
	assert.ErrorIs(t, err, ErrShape)
}

type namedClasses struct {
	classes
	names []string
}

func (c namedClasses) ClassNames() []string { return c.names }

func TestSplitByClassKeepsNames(t *testing.T) {
	src := classes{n: 2, ids: []int{0, 1, 0, 1}}
	info := Info{testPerClass: 1, trainPerClass: 1}
	opts := Options{Resize: 2, Crop: 2}

	splits, err := SplitByClass(src, info, opts)
	require.NoError(t, err)
	assert.Nil(t, splits.ClassNames)

	splits, err = SplitByClass(namedClasses{classes: src, names: []string{"cat", "dog"}}, info, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, splits.ClassNames)
}

func writeCIFARBatch(t *testing.T, path string, labels []byte) {
	t.Helper()
	data := make([]byte, 0, len(labels)*Row)
	for i, l := range labels {
		row := make([]byte, Row)
		row[0] = l
		for p := 0; p < 1024; p++ {
			row[1+p] = byte(i)        // red plane
			row[1+1024+p] = 10        // green plane
			row[1+2048+p] = byte(200) // blue plane
		}
		data = append(data, row...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadCIFAR10(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 5; i++ {
		writeCIFARBatch(t, filepath.Join(dir, "data_batch_"+string(rune('0'+i))+".bin"), []byte{byte(i), 0})
	}
	writeCIFARBatch(t, filepath.Join(dir, "test_batch.bin"), []byte{9})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batches.meta.txt"),
		[]byte("airplane\nautomobile\nbird\ncat\ndeer\ndog\nfrog\nhorse\nship\ntruck\n\n"), 0o644))

	ds, err := LoadCIFAR10(dir)
	require.NoError(t, err)
	assert.Equal(t, 11, ds.Len())
	assert.Equal(t, 1, ds.Class(0))
	assert.Equal(t, 9, ds.Class(10))
	assert.Equal(t, OneHot(9, 10), ds.Label(10))
	require.Len(t, ds.ClassNames(), 10)
	assert.Equal(t, "truck", ds.ClassNames()[9])

	img, err := ds.Image(0)
	require.NoError(t, err)
	r, g, b, _ := img.At(5, 7).RGBA()
	assert.Equal(t, uint32(0), r>>8)
	assert.Equal(t, uint32(10), g>>8)
	assert.Equal(t, uint32(200), b>>8)
}

func TestLoadCIFAR10Errors(t *testing.T) {
	_, err := LoadCIFAR10(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_batch_1.bin"), make([]byte, Row+10), 0o644))
	_, err = LoadCIFAR10(dir)
	assert.Error(t, err, "truncated record")
}

func TestLoadImageList(t *testing.T) {
	root := t.TempDir()
	for i, name := range []string{"a.png", "b.png"} {
		f, err := os.Create(filepath.Join(root, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, solid(5, 5, color.RGBA{uint8(100 * i), 0, 0, 255})))
		require.NoError(t, f.Close())
	}
	list := filepath.Join(root, "train.txt")
	require.NoError(t, os.WriteFile(list, []byte("a.png 1 0 1\n\nb.png 0 1 0\n"), 0o644))

	ds, err := LoadImageList(root, list, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []float64{1, 0, 1}, ds.Label(0))

	img, err := ds.Image(1)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())

	sub := NewSubset(ds, []int{1, 0}, NewTransform(4, 4, false))
	px, lb, err := sub.Sample(0, nil)
	require.NoError(t, err)
	assert.Len(t, px, 3*16)
	assert.Equal(t, []float64{0, 1, 0}, lb)

	bad := filepath.Join(root, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("a.png 1 0\n"), 0o644))
	_, err = LoadImageList(root, bad, 3)
	assert.ErrorIs(t, err, ErrShape)
}

func TestOpenImageLists(t *testing.T) {
	root := t.TempDir()
	f, err := os.Create(filepath.Join(root, "x.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(3, 3, color.RGBA{1, 2, 3, 255})))
	require.NoError(t, f.Close())
	for name, body := range map[string]string{
		"train.txt":    "x.png 1 0\nx.png 0 1\n",
		"test.txt":     "x.png 1 0\n",
		"database.txt": "x.png 1 0\nx.png 0 1\nx.png 1 1\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o644))
	}

	splits, err := Open(Info{Name: "voc2012", NClass: 2, Format: FormatImageList, Path: root}, Options{Resize: 3, Crop: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, splits.Train.Len())
	assert.Equal(t, 1, splits.Test.Len())
	assert.Equal(t, 3, splits.Database.Len())
	assert.Equal(t, []int{3, 2, 2}, splits.Train.Shape())
}
