package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/b1naryth1ef/terrastream"
	"github.com/b1naryth1ef/terrastream/bench"
	"github.com/b1naryth1ef/terrastream/codec"
)

func main() {
	app := &cli.App{
		Name:        "terrastream",
		Description: "streaming 3D terrain tile engine",
		Commands: []*cli.Command{
			{
				Name:   "bench",
				Usage:  "stream a configured view and write a convergence report",
				Action: commandBench,
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  "config",
						Usage: "path to the configuration file",
						Value: "config.hcl",
					},
					&cli.StringFlag{
						Name:     "view",
						Usage:    "name of the view block to stream",
						Required: true,
					},
					&cli.PathFlag{
						Name:  "out",
						Usage: "directory the report is written to",
						Value: "report",
					},
					&cli.PathFlag{
						Name:  "root",
						Usage: "directory relative tile URLs are resolved against (defaults to the config directory)",
					},
					&cli.PathFlag{
						Name:  "archive",
						Usage: "zip archive holding the tile store",
					},
					&cli.BoolFlag{
						Name:  "static",
						Usage: "also write an index.html rendering the report",
					},
					&cli.IntFlag{
						Name:  "gpu-limit",
						Usage: "byte limit of the simulated GPU, 0 for none",
					},
					&cli.BoolFlag{
						Name:  "keep-going",
						Usage: "run every frame even once the view is complete",
					},
				},
			},
			{
				Name:      "inspect",
				Usage:     "decode a tile store file and print a summary",
				ArgsUsage: "FILE",
				Action:    commandInspect,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "mesh, metatile or pointcloud (detected from the header when unset)",
					},
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func commandBench(ctx *cli.Context) error {
	configPath := ctx.Path("config")
	config, err := terrastream.LoadConfig(configPath)
	if err != nil {
		return err
	}

	root := ctx.Path("root")
	if root == "" {
		root = filepath.Dir(configPath)
	}

	report, err := bench.Run(ctx.Context, config, bench.Opts{
		View:          ctx.String("view"),
		Output:        ctx.Path("out"),
		Root:          root,
		Archive:       ctx.Path("archive"),
		IncludeStatic: ctx.Bool("static"),
		GPULimit:      ctx.Int("gpu-limit"),
		KeepGoing:     ctx.Bool("keep-going"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("report %s: %d frames, complete=%v\n", report.ID, len(report.Frames), report.Complete)
	return nil
}

func commandInspect(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowSubcommandHelp(ctx)
	}
	path := ctx.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	kind := ctx.String("kind")
	if kind == "" {
		switch {
		case bytes.HasPrefix(data, []byte(codec.MeshMagic)):
			kind = "mesh"
		case bytes.HasPrefix(data, []byte(codec.MetatileMagic)):
			kind = "metatile"
		case strings.HasSuffix(path, ".pts"):
			kind = "pointcloud"
		default:
			return fmt.Errorf("cannot tell what %s is, pass --kind", path)
		}
	}

	switch kind {
	case "mesh":
		mesh, err := codec.DecodeMesh(data)
		if err != nil {
			return err
		}
		fmt.Printf("mesh v%d, mean undulation %.2f, %d submeshes, %d bytes decoded\n", mesh.Version, mesh.MeanUndulation, len(mesh.Submeshes), mesh.Size())
		for i, sm := range mesh.Submeshes {
			fmt.Printf("  [%d] flags=%08b surface=%d layer=%d vertices=%d faces=%d diagonal=%.1f\n",
				i, sm.Flags, sm.SurfaceReference, sm.TextureLayer, sm.VertexCount(), sm.FaceCount(), sm.BBox.Diagonal())
		}
	case "metatile":
		mt, err := codec.DecodeMetatile(data)
		if err != nil {
			return err
		}
		geometry := 0
		for _, n := range mt.Nodes {
			if n.Flags.Has(codec.MetanodeGeometry) {
				geometry++
			}
		}
		fmt.Printf("metatile %d-%d-%d, %dx%d nodes, %d with geometry\n", mt.Level, mt.X, mt.Y, mt.SizeX, mt.SizeY, geometry)
	case "pointcloud":
		pc, err := codec.DecodePointCloud(data)
		if err != nil {
			return err
		}
		fmt.Printf("point cloud, %d points, bounds %v - %v, diagonal %.1f\n", pc.Len(), pc.Min, pc.Max, pc.Diagonal())
	default:
		return fmt.Errorf("unknown kind '%s'", kind)
	}
	return nil
}
