package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Scene is one raw dual-polarization SAR acquisition.
type Scene struct {
	ID            string    `msgpack:"id" json:"id"`
	Time          time.Time `msgpack:"time" json:"time"`
	Mode          string    `msgpack:"mode" json:"mode"`
	Polarizations []string  `msgpack:"polarizations" json:"polarizations"`
	ResolutionM   float64   `msgpack:"resolution_m" json:"resolution_m"`
	VV            *Raster   `msgpack:"vv" json:"vv"`
	VH            *Raster   `msgpack:"vh" json:"vh"`
}

// HasPolarization reports whether the scene was acquired with pol.
func (s *Scene) HasPolarization(pol string) bool {
	for _, p := range s.Polarizations {
		if p == pol {
			return true
		}
	}
	return false
}

// sceneHeader is read on its own so catalogs can filter without decoding the
// pixel payload.
type sceneHeader struct {
	ID            string    `msgpack:"id"`
	Time          time.Time `msgpack:"time"`
	Mode          string    `msgpack:"mode"`
	Polarizations []string  `msgpack:"polarizations"`
	ResolutionM   float64   `msgpack:"resolution_m"`
	Grid          Grid      `msgpack:"grid"`
}

// sceneFile is the on-disk layout: a header followed by the two bands.
type sceneFile struct {
	Header sceneHeader `msgpack:"header"`
	VV     *Raster     `msgpack:"vv"`
	VH     *Raster     `msgpack:"vh"`
}

// SceneInfo is the metadata of a scene file.
type SceneInfo struct {
	Path          string
	ID            string
	Time          time.Time
	Mode          string
	Polarizations []string
	ResolutionM   float64
	Grid          Grid
}

// WriteScene stores s at path.
func WriteScene(path string, s *Scene) error {
	if s.VV == nil || s.VH == nil {
		return fmt.Errorf("scene %s is missing a polarization band", s.ID)
	}
	f := sceneFile{
		Header: sceneHeader{
			ID:            s.ID,
			Time:          s.Time.UTC(),
			Mode:          s.Mode,
			Polarizations: s.Polarizations,
			ResolutionM:   s.ResolutionM,
			Grid:          s.VV.Grid,
		},
		VV: s.VV,
		VH: s.VH,
	}
	return writeMsgpack(path, &f)
}

// ReadScene loads a scene file.
func ReadScene(path string) (*Scene, error) {
	var f sceneFile
	if err := readMsgpack(path, &f); err != nil {
		return nil, err
	}
	if f.VV == nil || f.VH == nil {
		return nil, fmt.Errorf("scene file %s is missing a polarization band", path)
	}
	return &Scene{
		ID:            f.Header.ID,
		Time:          f.Header.Time,
		Mode:          f.Header.Mode,
		Polarizations: f.Header.Polarizations,
		ResolutionM:   f.Header.ResolutionM,
		VV:            f.VV,
		VH:            f.VH,
	}, nil
}

// ReadSceneInfo decodes only the header of a scene file.
func ReadSceneInfo(path string) (*SceneInfo, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(fh))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		if key != "header" {
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", path, err)
			}
			continue
		}
		var h sceneHeader
		if err := dec.Decode(&h); err != nil {
			return nil, fmt.Errorf("decoding %s header: %w", path, err)
		}
		return &SceneInfo{
			Path:          path,
			ID:            h.ID,
			Time:          h.Time,
			Mode:          h.Mode,
			Polarizations: h.Polarizations,
			ResolutionM:   h.ResolutionM,
			Grid:          h.Grid,
		}, nil
	}
	return nil, fmt.Errorf("scene file %s has no header", path)
}

// WriteFixed stores a fixed-point raster at path.
func WriteFixed(path string, f *FixedRaster) error {
	return writeMsgpack(path, f)
}

// ReadFixed loads a fixed-point raster.
func ReadFixed(path string) (*FixedRaster, error) {
	var f FixedRaster
	if err := readMsgpack(path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// WriteRaster stores a float raster at path.
func WriteRaster(path string, r *Raster) error {
	return writeMsgpack(path, r)
}

// ReadRaster loads a float raster.
func ReadRaster(path string) (*Raster, error) {
	var r Raster
	if err := readMsgpack(path, &r); err != nil {
		return nil, err
	}
	if len(r.Data) != r.Grid.Len() || len(r.Valid) != r.Grid.Len() {
		return nil, fmt.Errorf("raster %s: payload does not match %dx%d grid", path, r.Grid.Width, r.Grid.Height)
	}
	return &r, nil
}

// Encode writes v to w as msgpack.
func Encode(w io.Writer, v any) error {
	return msgpack.NewEncoder(w).Encode(v)
}

// Decode reads msgpack from r into v.
func Decode(r io.Reader, v any) error {
	return msgpack.NewDecoder(r).Decode(v)
}

func writeMsgpack(path string, v any) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fh)
	if err := msgpack.NewEncoder(w).Encode(v); err != nil {
		fh.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func readMsgpack(path string, v any) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	if err := msgpack.NewDecoder(bufio.NewReader(fh)).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
