package dataset

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeAdapter serves a fixed sample list and writes tiny PNGs on
// acquisition.
type fakeAdapter struct {
	root    string
	samples map[Split][]Sample

	acquireCalls int
	acquireErr   error
	iterateErr   error
	onAcquire    func()
}

func (a *fakeAdapter) Root() string { return a.root }

func (a *fakeAdapter) AcquireDataset(ctx context.Context) error {
	a.acquireCalls++
	if a.onAcquire != nil {
		a.onAcquire()
	}
	if a.acquireErr != nil {
		return a.acquireErr
	}
	for _, samples := range a.samples {
		for _, s := range samples {
			writePNG(filepath.Join(a.root, s.Path), color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return nil
}

func (a *fakeAdapter) DatasetExists() (bool, error) {
	for _, samples := range a.samples {
		for _, s := range samples {
			if _, err := os.Stat(filepath.Join(a.root, s.Path)); err != nil {
				return false, nil
			}
		}
	}
	return true, nil
}

func (a *fakeAdapter) IterateSplit(split Split) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		if a.iterateErr != nil {
			yield(Sample{}, a.iterateErr)
			return
		}
		for _, s := range a.samples[split] {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func writePNG(path string, c color.Color) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		panic(err)
	}
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		panic(err)
	}
}

func newFakeAdapter(t *testing.T) *fakeAdapter {
	return &fakeAdapter{
		root: filepath.Join(t.TempDir(), "fake"),
		samples: map[Split][]Sample{
			Train: {{Path: "images/a.png", Label: []int{1, 0, 1}}, {Path: "images/b.png", Label: []int{0, 1, 0}}},
			Test:  {{Path: "images/c.png", Label: []int{0, 0, 1}}},
			DB:    {{Path: "images/d.png", Label: []int{1, 1, 1}}},
		},
	}
}

func quiet() Option {
	logger, _ := test.NewNullLogger()
	return WithLogger(logger)
}

func TestOpen(t *testing.T) {
	t.Run("invalid split", func(t *testing.T) {
		adapter := newFakeAdapter(t)
		_, err := Open(context.Background(), adapter, "validation", quiet())

		var splitErr *InvalidSplitError
		require.ErrorAs(t, err, &splitErr)
		require.Equal(t, "validation", splitErr.Split)
		require.Zero(t, adapter.acquireCalls)
	})

	t.Run("acquires a missing dataset once", func(t *testing.T) {
		adapter := newFakeAdapter(t)

		ds, err := Open(context.Background(), adapter, "train", quiet())
		require.NoError(t, err)
		require.Equal(t, 1, adapter.acquireCalls)
		require.Equal(t, 2, ds.Len())
		require.Equal(t, Train, ds.Split())

		path, err := ds.Path(0)
		require.NoError(t, err)
		require.True(t, filepath.IsAbs(path))
		require.Equal(t, filepath.Join(adapter.root, "images/a.png"), path)

		_, err = Open(context.Background(), adapter, "test", quiet())
		require.NoError(t, err)
		require.Equal(t, 1, adapter.acquireCalls)
	})

	t.Run("force download erases the root first", func(t *testing.T) {
		adapter := newFakeAdapter(t)
		_, err := Open(context.Background(), adapter, "db", quiet())
		require.NoError(t, err)

		marker := filepath.Join(adapter.root, "stale.txt")
		require.NoError(t, os.WriteFile(marker, []byte("old"), 0o644))

		adapter.onAcquire = func() {
			_, err := os.Stat(marker)
			require.True(t, os.IsNotExist(err), "old contents must be gone before acquisition")
			_, err = os.Stat(adapter.root)
			require.NoError(t, err, "root must be recreated before acquisition")
		}

		ds, err := Open(context.Background(), adapter, "db", WithForceDownload(true), quiet())
		require.NoError(t, err)
		require.Equal(t, 2, adapter.acquireCalls)
		require.Equal(t, 1, ds.Len())
		require.NoFileExists(t, marker)
	})

	t.Run("acquisition failure aborts", func(t *testing.T) {
		adapter := newFakeAdapter(t)
		adapter.acquireErr = errors.New("connection refused")

		_, err := Open(context.Background(), adapter, "train", quiet())
		require.ErrorIs(t, err, adapter.acquireErr)
	})

	t.Run("iteration failure aborts", func(t *testing.T) {
		adapter := newFakeAdapter(t)
		adapter.iterateErr = errors.New("bad row")

		_, err := Open(context.Background(), adapter, "train", quiet())
		require.ErrorIs(t, err, adapter.iterateErr)
	})
}

func TestGet(t *testing.T) {
	adapter := newFakeAdapter(t)

	t.Run("decodes to rgb", func(t *testing.T) {
		ds, err := Open(context.Background(), adapter, "train", quiet())
		require.NoError(t, err)

		img, label, err := ds.Get(0)
		require.NoError(t, err)
		require.Equal(t, []int{1, 0, 1}, label)

		rgb, ok := img.(*image.NRGBA)
		require.True(t, ok)
		require.Equal(t, image.Rect(0, 0, 4, 3), rgb.Bounds())
		r, g, b, a := rgb.At(1, 1).RGBA()
		require.Equal(t, r, g)
		require.Equal(t, g, b)
		require.Equal(t, uint32(0xffff), a)
	})

	t.Run("applies transforms to copies", func(t *testing.T) {
		ds, err := Open(context.Background(), adapter, "train", quiet(),
			WithTransform(func(img image.Image) image.Image {
				return img.(*image.NRGBA).SubImage(image.Rect(0, 0, 2, 2))
			}),
			WithTargetTransform(func(label []int) []int {
				label[0] = 42
				return label
			}))
		require.NoError(t, err)

		img, label, err := ds.Get(1)
		require.NoError(t, err)
		require.Equal(t, 2, img.Bounds().Dx())
		require.Equal(t, []int{42, 1, 0}, label)

		original, err := ds.Label(1)
		require.NoError(t, err)
		require.Equal(t, []int{0, 1, 0}, original)
	})

	t.Run("index out of range", func(t *testing.T) {
		ds, err := Open(context.Background(), adapter, "test", quiet())
		require.NoError(t, err)

		for _, i := range []int{-1, 1, 100} {
			_, _, err := ds.Get(i)
			var rangeErr *IndexOutOfRangeError
			require.ErrorAs(t, err, &rangeErr)
			require.Equal(t, i, rangeErr.Index)
			require.Equal(t, 1, rangeErr.Len)
		}
	})

	t.Run("decoder errors surface", func(t *testing.T) {
		decodeErr := errors.New("truncated jpeg")
		ds, err := Open(context.Background(), adapter, "db", quiet(),
			WithDecoder(DecoderFunc(func(string) (image.Image, error) { return nil, decodeErr })))
		require.NoError(t, err)

		_, _, err = ds.Get(0)
		require.ErrorIs(t, err, decodeErr)
	})
}

func TestDecodeRGBDropsAlpha(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.png")
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
	src.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := DecodeRGB(path)
	require.NoError(t, err)

	rgb, ok := img.(*image.NRGBA)
	require.True(t, ok)
	require.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, rgb.NRGBAAt(0, 0))
	require.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, rgb.NRGBAAt(1, 0))
}

func TestParseSplit(t *testing.T) {
	for _, s := range Splits {
		got, err := ParseSplit(string(s))
		require.NoError(t, err)
		require.Equal(t, s, got)
	}

	_, err := ParseSplit("Train")
	require.Error(t, err)
}

func TestLabelMatrix(t *testing.T) {
	ds := &Dataset{
		paths:  []string{"a", "b", "c"},
		labels: [][]int{{2, 5}, {7}, {}},
	}

	matrix, width := ds.LabelMatrix()
	require.Equal(t, 2, width)
	require.Equal(t, []int32{2, 5, 7, -1, -1, -1}, matrix)
}
