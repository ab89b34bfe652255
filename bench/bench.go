// Package bench drives the streaming engine against a tile store for a
// configured view and writes a report of how the frames converged.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"

	"github.com/b1naryth1ef/terrastream"
	"github.com/b1naryth1ef/terrastream/dl"
	"github.com/b1naryth1ef/terrastream/gpu"
	"github.com/b1naryth1ef/terrastream/web"
)

type Opts struct {
	View   string
	Output string
	// Root resolves relative tile store URLs.
	Root string
	// Archive, when set, is a zip file serving relative and zip:// URLs.
	Archive string
	// IncludeStatic also writes an index.html rendering the report.
	IncludeStatic bool
	// GPULimit caps the accounting device; zero is unlimited.
	GPULimit int
	// KeepGoing runs every configured frame even once the view is
	// complete.
	KeepGoing bool
}

const (
	defaultFrames        = 120
	defaultFrameInterval = 16 * time.Millisecond
	coverageCell         = 8
	coverageMaxSide      = 4096
)

func ensureDirectory(path string) error {
	err := os.MkdirAll(path, os.ModePerm)
	if err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

type benchView struct {
	name     string
	view     terrastream.View
	frames   int
	interval time.Duration
}

func resolveView(config *terrastream.Config, style *terrastream.Style, name string) (*benchView, error) {
	viewCfg, err := config.View(name)
	if err != nil {
		return nil, err
	}

	surface := style.Surface(viewCfg.Surface)
	if surface == nil {
		return nil, fmt.Errorf("view '%s' references unknown surface '%s'", viewCfg.Name, viewCfg.Surface)
	}

	tiles := make([]maptile.Tile, 0, len(viewCfg.Tiles))
	for _, s := range viewCfg.Tiles {
		id, err := terrastream.ParseTileID(s)
		if err != nil {
			return nil, fmt.Errorf("view '%s': %w", viewCfg.Name, err)
		}
		tiles = append(tiles, id)
	}

	bv := &benchView{
		name: viewCfg.Name,
		view: terrastream.View{
			Surface:     surface,
			Tiles:       tiles,
			TargetLevel: viewCfg.TargetLevel,
		},
		frames:   viewCfg.Frames,
		interval: defaultFrameInterval,
	}
	if bv.frames <= 0 {
		bv.frames = defaultFrames
	}
	if viewCfg.FrameInterval != "" {
		bv.interval, err = time.ParseDuration(viewCfg.FrameInterval)
		if err != nil {
			return nil, fmt.Errorf("view '%s': invalid frame_interval: %w", viewCfg.Name, err)
		}
	}
	return bv, nil
}

// Run streams the configured view for its frame count, or until every
// tile is drawn at full fidelity, and writes the report into
// opts.Output.
func Run(ctx context.Context, config *terrastream.Config, opts Opts) (*web.ReportData, error) {
	settings, err := config.Settings()
	if err != nil {
		return nil, err
	}
	style, err := terrastream.NewStyle(config)
	if err != nil {
		return nil, err
	}
	bv, err := resolveView(config, style, opts.View)
	if err != nil {
		return nil, err
	}
	if err := ensureDirectory(opts.Output); err != nil {
		return nil, err
	}

	mux := dl.NewMux(settings.LoaderTimeout, opts.Root)
	if opts.Archive != "" {
		archive, err := dl.OpenArchive(opts.Archive)
		if err != nil {
			return nil, err
		}
		defer archive.Close()
		mux.Schemes["zip"] = archive
		mux.Default = archive
	}

	queue := dl.NewQueue(mux, dl.QueueOpts{
		Concurrency: settings.LoaderConcurrency,
		Rate:        settings.LoaderRate,
		Burst:       settings.LoaderBurst,
		Timeout:     settings.LoaderTimeout,
	})
	device := gpu.NewNull(opts.GPULimit)
	m := terrastream.NewMap(terrastream.MapOptions{
		Settings: settings,
		Style:    style,
		Loader:   queue,
		Device:   device,
	})

	report := &web.ReportData{
		ID:          uuid.NewString(),
		View:        bv.name,
		Surface:     bv.view.Surface.ID,
		TargetLevel: bv.view.TargetLevel,
		StartedAt:   time.Now(),
	}

	var last terrastream.FrameResult
	g, gctx := errgroup.WithContext(ctx)
	loaderCtx, cancelLoader := context.WithCancel(gctx)

	g.Go(func() error {
		err := queue.Run(loaderCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer cancelLoader()
		defer m.Kill()

		ticker := time.NewTicker(bv.interval)
		defer ticker.Stop()

		for i := 0; i < bv.frames; i++ {
			device.Reset()
			last = m.DrawFrame(bv.view, device)
			report.Frames = append(report.Frames, frameData(last, m.Stats()))

			if last.Ready+last.Empty == last.Visible {
				report.Complete = true
				if !opts.KeepGoing {
					log.Printf("[bench] view %s complete after %d frames", bv.name, last.Frame)
					break
				}
			}

			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}

		report.Stats = *m.Stats()
		report.Caches = []web.CacheData{cacheData(m.CPUCache()), cacheData(m.GPUCache())}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.Duration = time.Since(report.StartedAt)
	report.Loader = queue.Stats()

	palette, err := terrastream.LevelPalette(bv.view.TargetLevel + 1)
	if err != nil {
		return nil, err
	}
	report.Levels = levelData(last, palette)

	if err := writeCoverage(filepath.Join(opts.Output, "coverage.png"), bv.view, last, palette); err != nil {
		return nil, err
	}
	if err := writeReport(filepath.Join(opts.Output, "report.json"), report); err != nil {
		return nil, err
	}
	if opts.IncludeStatic {
		if err := writeStatic(opts.Output, report); err != nil {
			return nil, err
		}
	}

	log.Printf("[bench] finished view %s in %dms (%d frames, %d drawn tiles)", bv.name, report.Duration.Milliseconds(), len(report.Frames), len(last.Drawn))
	return report, nil
}

func frameData(res terrastream.FrameResult, stats *terrastream.Stats) web.FrameData {
	return web.FrameData{
		Frame:     res.Frame,
		Processed: res.Processed,
		Visible:   res.Visible,
		Ready:     res.Ready,
		Fallback:  res.Fallback,
		Missing:   res.Missing,
		Empty:     res.Empty,
		DrawCalls: res.DrawCalls,
		Pruned:    res.Pruned,
		GPUUsed:   stats.GPURenderUsed,

		GeodataReady: res.GeodataReady,
		GPUFluxIn:    stats.GPUFluxIn,
		GPUFluxOut:   stats.GPUFluxOut,
	}
}

func cacheData(c *terrastream.Cache) web.CacheData {
	return web.CacheData{
		Name:      c.Name(),
		Used:      c.Used(),
		Capacity:  c.Capacity(),
		Items:     c.Len(),
		Evictions: c.Evictions(),
	}
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

func levelData(res terrastream.FrameResult, palette []color.Color) []web.LevelData {
	counts := make([]int, len(palette))
	for _, d := range res.Drawn {
		if int(d.Tile.Z) < len(counts) {
			counts[d.Tile.Z]++
		}
	}

	levels := make([]web.LevelData, 0, len(palette))
	for level, c := range palette {
		levels = append(levels, web.LevelData{
			Level: level,
			Color: hexColor(c),
			Tiles: counts[level],
		})
	}
	return levels
}

// coverageImage paints every drawn tile of a frame over the area it covers
// at the view's target level, coloured by the level it was drawn at.
func coverageImage(view terrastream.View, res terrastream.FrameResult, palette []color.Color) *image.RGBA {
	z := maptile.Zoom(view.TargetLevel)
	tiles := view.Expand()
	if len(tiles) == 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	for i, t := range tiles {
		tiles[i] = atLevel(t, z)
	}

	minX, minY := tiles[0].X, tiles[0].Y
	maxX, maxY := minX, minY
	for _, t := range tiles[1:] {
		minX, maxX = min(minX, t.X), max(maxX, t.X)
		minY, maxY = min(minY, t.Y), max(maxY, t.Y)
	}
	width, height := int(maxX-minX+1), int(maxY-minY+1)

	cell := coverageCell
	for cell > 1 && (width*cell > coverageMaxSide || height*cell > coverageMaxSide) {
		cell /= 2
	}

	img := image.NewRGBA(image.Rect(0, 0, width*cell, height*cell))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for _, d := range res.Drawn {
		if int(d.Tile.Z) >= len(palette) {
			continue
		}
		lo, hi := atLevel(d.Tile, z), atLevel(d.Tile, z)
		if d.Tile.Z < z {
			lo, hi = d.Tile.Range(z)
		}
		rect := image.Rect(
			(int(lo.X)-int(minX))*cell,
			(int(lo.Y)-int(minY))*cell,
			(int(hi.X)-int(minX)+1)*cell,
			(int(hi.Y)-int(minY)+1)*cell,
		).Intersect(img.Bounds())
		draw.Draw(img, rect, image.NewUniform(palette[d.Tile.Z]), image.Point{}, draw.Src)
	}
	return img
}

// atLevel maps a tile finer than z to its ancestor at z.
func atLevel(t maptile.Tile, z maptile.Zoom) maptile.Tile {
	if t.Z <= z {
		return t
	}
	d := t.Z - z
	return maptile.New(t.X>>d, t.Y>>d, z)
}

func writeCoverage(path string, view terrastream.View, res terrastream.FrameResult, palette []color.Color) error {
	fd, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fd.Close()
	return png.Encode(fd, coverageImage(view, res, palette))
}

func writeReport(path string, report *web.ReportData) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeStatic(path string, report *web.ReportData) error {
	fd, err := os.Create(filepath.Join(path, "index.html"))
	if err != nil {
		return err
	}
	defer fd.Close()

	dataSerialized, err := json.Marshal(report)
	if err != nil {
		return err
	}

	tmpl := template.Must(template.New("index.html").Parse(web.GetIndexHTML()))
	return tmpl.Execute(fd, string(dataSerialized))
}
