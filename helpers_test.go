package terrastream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b1naryth1ef/terrastream/codec"
	"github.com/b1naryth1ef/terrastream/gpu"
)

var errNotServed = errors.New("not served")

type fakeLoad struct {
	req  LoadRequest
	done func([]byte, error)
}

// fakeLoader records every request. URLs found in serve are answered
// immediately; everything else waits until the test completes it.
type fakeLoader struct {
	serve   map[string][]byte
	fail    map[string]error
	loads   []*fakeLoad
	pending []*fakeLoad
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		serve: make(map[string][]byte),
		fail:  make(map[string]error),
	}
}

func (l *fakeLoader) Load(ctx context.Context, req LoadRequest, done func([]byte, error)) {
	load := &fakeLoad{req: req, done: done}
	l.loads = append(l.loads, load)
	if data, ok := l.serve[req.URL]; ok {
		done(data, nil)
		return
	}
	if err, ok := l.fail[req.URL]; ok {
		done(nil, err)
		return
	}
	l.pending = append(l.pending, load)
}

func (l *fakeLoader) count(url string) int {
	n := 0
	for _, load := range l.loads {
		if load.req.URL == url {
			n++
		}
	}
	return n
}

// complete answers the oldest pending request for url.
func (l *fakeLoader) complete(t *testing.T, url string, data []byte, err error) {
	t.Helper()
	for i, load := range l.pending {
		if load.req.URL == url {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			load.done(data, err)
			return
		}
	}
	t.Fatalf("no pending load for %s", url)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type testEnv struct {
	m      *Map
	loader *fakeLoader
	device *gpu.Null
	clock  *fakeClock
}

func testSettings() Settings {
	s := DefaultSettings()
	s.RetryBackoff = time.Second
	s.ProcessBudget = 0
	s.NodeTTL = 0
	return s
}

func newTestEnv(t *testing.T, settings Settings, style *Style) *testEnv {
	t.Helper()
	env := &testEnv{
		loader: newFakeLoader(),
		device: gpu.NewNull(0),
		clock:  &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	env.m = NewMap(MapOptions{
		Settings: settings,
		Style:    style,
		Loader:   env.loader,
		Device:   env.device,
		Clock:    env.clock.Now,
	})
	t.Cleanup(env.m.Kill)
	return env
}

// pump polls ready and drains the completion queue until ready reports
// true or the rounds run out.
func (env *testEnv) pump(rounds int, ready func() bool) bool {
	for i := 0; i < rounds; i++ {
		if ready() {
			return true
		}
		env.m.ProcessQueue(0)
	}
	return ready()
}

func testMesh(submeshes ...codec.SubmeshFlags) *codec.Mesh {
	if len(submeshes) == 0 {
		submeshes = []codec.SubmeshFlags{codec.SubmeshInternalUV}
	}
	mesh := &codec.Mesh{Version: codec.MeshVersionMax, MeanUndulation: 1.5}
	for _, flags := range submeshes {
		sm := &codec.Submesh{
			Flags: flags,
			BBox: codec.BBox{
				Min: [3]float64{0, 0, 0},
				Max: [3]float64{100, 100, 10},
			},
			Vertices: []float32{0, 0, 0, 100, 0, 5, 0, 100, 10},
			Indices:  []uint16{0, 1, 2},
		}
		if flags.Has(codec.SubmeshInternalUV) {
			sm.InternalUVs = []float32{0, 0, 1, 0, 0, 1}
		}
		if flags.Has(codec.SubmeshExternalUV) {
			sm.ExternalUVs = []float32{0, 0, 1, 0, 0, 1}
		}
		mesh.Submeshes = append(mesh.Submeshes, sm)
	}
	return mesh
}

func testMeshPayload(submeshes ...codec.SubmeshFlags) []byte {
	return codec.EncodeMesh(testMesh(submeshes...))
}

func testPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// testAvailability builds an availability image whose every tile carries
// flags.
func testAvailability(t *testing.T, flags codec.AvailabilityFlags) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 256, 256))
	for i := range img.Pix {
		img.Pix[i] = uint8(flags)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testMetatile(level uint8, x, y uint32, size uint16, node codec.Metanode) []byte {
	mt := &codec.Metatile{Level: level, X: x, Y: y, SizeX: size, SizeY: size}
	mt.Nodes = make([]codec.Metanode, int(size)*int(size))
	for i := range mt.Nodes {
		mt.Nodes[i] = node
	}
	return codec.EncodeMetatile(mt)
}
