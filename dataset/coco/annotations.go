package coco

import (
	"encoding/json"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type annotationJSON struct {
	Images []struct {
		ID      int64  `json:"id"`
		CocoURL string `json:"coco_url"`
	} `json:"images"`
	Annotations []struct {
		ImageID    int64 `json:"image_id"`
		CategoryID int   `json:"category_id"`
	} `json:"annotations"`
}

type record struct {
	path       string
	categories []int
}

// annotationRecords parses an annotation file once per adapter and serves
// later calls from the cache.
func (a *Adapter) annotationRecords(path string) ([]record, error) {
	if cached, ok := a.annotations.Get(path); ok {
		return cached.([]record), nil
	}

	records, err := a.parseAnnotations(path)
	if err != nil {
		return nil, err
	}
	a.annotations.Set(path, records, cache.NoExpiration)
	return records, nil
}

func (a *Adapter) parseAnnotations(path string) ([]record, error) {
	a.logger.WithField("file", path).Info("Start processing annotations")

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open annotations %q", path)
	}
	defer f.Close()

	var parsed annotationJSON
	if err := json.NewDecoder(f).Decode(&parsed); err != nil {
		return nil, errors.Wrapf(err, "parse annotations %q", path)
	}

	order := make([]int64, 0, len(parsed.Images))
	paths := make(map[int64]string, len(parsed.Images))
	categories := make(map[int64]map[int]struct{}, len(parsed.Images))
	for _, img := range parsed.Images {
		if _, seen := paths[img.ID]; !seen {
			order = append(order, img.ID)
		}
		paths[img.ID] = imagePath(img.CocoURL)
		categories[img.ID] = map[int]struct{}{}
	}

	skipped := 0
	for _, ann := range parsed.Annotations {
		set, ok := categories[ann.ImageID]
		if !ok {
			skipped++
			continue
		}
		set[ann.CategoryID] = struct{}{}
	}
	if skipped > 0 {
		a.logger.WithFields(logrus.Fields{"file": path, "annotations": skipped}).
			Warn("Skipped annotations of unknown images")
	}

	records := make([]record, 0, len(order))
	for _, id := range order {
		ids := make([]int, 0, len(categories[id]))
		for c := range categories[id] {
			ids = append(ids, c)
		}
		sort.Ints(ids)
		records = append(records, record{path: paths[id], categories: ids})
	}

	a.logger.WithFields(logrus.Fields{"file": path, "images": len(records)}).
		Info("Finish processing annotations")
	return records, nil
}

// imagePath turns a coco_url into a path relative to the dataset root,
// e.g. http://images.cocodataset.org/train2014/x.jpg becomes train2014/x.jpg.
func imagePath(cocoURL string) string {
	u, err := url.Parse(cocoURL)
	if err != nil || u.Host == "" {
		return cocoURL
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Encode returns the multi-hot vector of length k with a 1 at every id.
// Duplicate ids have no additional effect.
func Encode(ids []int, k int) ([]int, error) {
	label := make([]int, k)
	for _, id := range ids {
		if id < 0 || id >= k {
			return nil, errors.Errorf("category id %d out of range [0, %d)", id, k)
		}
		label[id] = 1
	}
	return label, nil
}
