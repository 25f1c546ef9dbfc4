package main

import (
	"context"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/cloudtiff"
	"github.com/airbusgeo/cloudtiff/raster"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose    bool
	blocksize  string
	numBlocks  int
	outFile    string
	epsg       int
	regionFlag []float64
	cropFlag   []float64
	widthFlag  uint32
	heightFlag uint32
	mpLimit    float64
	tileSize   uint32
	bigTiff    bool
	bigEndian  bool
	deflate    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cogview",
	Short: "inspect, render and produce cloud-optimized geotiffs",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&blocksize, "blocksize", "512k", "gs cache blocksize")
	rootCmd.PersistentFlags().IntVar(&numBlocks, "numblocks", 100, "number of gs cached blocks")
	rootCmd.AddCommand(infoCmd, renderCmd, tileCmd, treeCmd, encodeCmd)

	renderCmd.Flags().StringVar(&outFile, "output", "out.png", "destination png")
	renderCmd.Flags().Float64SliceVar(&cropFlag, "crop", nil, "unit crop min_x,min_y,max_x,max_y")
	renderCmd.Flags().IntVar(&epsg, "epsg", 0, "epsg code of --region coordinates")
	renderCmd.Flags().Float64SliceVar(&regionFlag, "region", nil, "output region min_x,min_y,max_x,max_y")
	renderCmd.Flags().Uint32Var(&widthFlag, "width", 0, "output width in pixels")
	renderCmd.Flags().Uint32Var(&heightFlag, "height", 0, "output height in pixels")
	renderCmd.Flags().Float64Var(&mpLimit, "mp", 0, "megapixel limit (used when width/height absent)")

	tileCmd.Flags().StringVar(&outFile, "output", "tile.png", "destination png")

	treeCmd.Flags().StringVar(&outFile, "output", "", "destination directory (default tiles-<uuid>)")

	encodeCmd.Flags().StringVar(&outFile, "output", "out.tif", "destination cog")
	encodeCmd.Flags().IntVar(&epsg, "epsg", 4326, "epsg code of --region coordinates")
	encodeCmd.Flags().Float64SliceVar(&regionFlag, "region", nil, "projected region min_x,min_y,max_x,max_y")
	encodeCmd.Flags().Uint32Var(&tileSize, "tilesize", 256, "tile dimension in pixels")
	encodeCmd.Flags().BoolVar(&bigTiff, "bigtiff", false, "write bigtiff")
	encodeCmd.Flags().BoolVar(&bigEndian, "bigendian", false, "write big endian")
	encodeCmd.Flags().BoolVar(&deflate, "deflate", false, "deflate-compress tiles")
}

// httpRangeReader serves positional reads with one ranged GET per
// call. Stateless, so it satisfies the shared-reader contract without
// locking.
type httpRangeReader struct {
	client *http.Client
	url    string
}

func (h httpRangeReader) ReadRange(offset uint64, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	req, err := http.NewRequest(http.MethodGet, h.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(len(p))-1))
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("range get %s: %s", h.url, resp.Status)
	}
	n, err := io.ReadFull(resp.Body, p)
	if err == io.ErrUnexpectedEOF {
		// Ranges past the end of the object come back short.
		return n, io.EOF
	}
	return n, err
}

// openSource resolves a local path, gs:// or http(s):// url to a
// positional reader.
func openSource(ctx context.Context, src string) (cloudtiff.RangeReader, func() error, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return httpRangeReader{client: http.DefaultClient, url: src}, func() error { return nil }, nil
	}
	if strings.HasPrefix(src, "gs://") {
		stcl, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("storage.newclient: %w", err)
		}
		gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
		if err != nil {
			return nil, nil, fmt.Errorf("gcs.handle: %w", err)
		}
		gcsa, err := osio.NewAdapter(gcsh, osio.BlockSize(blocksize), osio.NumCachedBlocks(numBlocks))
		if err != nil {
			return nil, nil, fmt.Errorf("osio.new: %w", err)
		}
		r, err := gcsa.Reader(src)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", src, err)
		}
		return cloudtiff.ReaderAt{R: r}, stcl.Close, nil
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, nil, err
	}
	return cloudtiff.ReaderAt{R: f}, f.Close, nil
}

func openCog(ctx context.Context, src string) (*cloudtiff.CloudTiff, cloudtiff.RangeReader, func() error, error) {
	reader, closer, err := openSource(ctx, src)
	if err != nil {
		return nil, nil, nil, err
	}
	cog, err := cloudtiff.OpenRange(reader)
	if err != nil {
		_ = closer()
		return nil, nil, nil, err
	}
	return cog, reader, closer, nil
}

var infoCmd = &cobra.Command{
	Use:   "info cog.tif",
	Short: "print pyramid and projection details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cog, _, closer, err := openCog(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer closer()
		fmt.Printf("%s\n", cog)
		fmt.Printf("  epsg: %d\n", cog.Projection.EPSG)
		fmt.Printf("  bounds (lat/lon): %v\n", cog.BoundsLatLonDeg())
		for _, level := range cog.Levels {
			fmt.Printf("  level %d: %dx%d, %dx%d tiles, %s\n",
				level.OverviewIndex, level.Width, level.Height,
				level.TileWidth, level.TileHeight, level.Compression)
		}
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render cog.tif",
	Short: "render a crop or projected region to png",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cog, reader, closer, err := openCog(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer closer()

		builder := cog.Renderer().WithReader(reader).WithLogger(logger)
		switch {
		case len(cropFlag) == 4:
			builder = builder.OfCrop(cropFlag[0], cropFlag[1], cropFlag[2], cropFlag[3])
		case len(regionFlag) == 4 && epsg != 0:
			builder = builder.OfOutputRegion(epsg, regionFlag[0], regionFlag[1], regionFlag[2], regionFlag[3])
		case len(regionFlag) == 4:
			builder = builder.OfOutputRegionLatLonDeg(regionFlag[0], regionFlag[1], regionFlag[2], regionFlag[3])
		}
		if widthFlag > 0 && heightFlag > 0 {
			builder = builder.WithExactResolution(widthFlag, heightFlag)
		} else if mpLimit > 0 {
			builder = builder.WithMPLimit(mpLimit)
		}

		result, err := builder.Render()
		if err != nil {
			return err
		}
		return writePng(outFile, result)
	},
}

var tileCmd = &cobra.Command{
	Use:   "tile cog.tif x y z",
	Short: "render one wmts tile to png",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		var x, y, z int
		if _, err := fmt.Sscanf(strings.Join(args[1:], " "), "%d %d %d", &x, &y, &z); err != nil {
			return fmt.Errorf("bad tile index: %w", err)
		}
		cog, reader, closer, err := openCog(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer closer()

		result, err := cog.Renderer().
			WithReader(reader).
			WithLogger(logger).
			OfTile(x, y, z).
			WithExactResolution(256, 256).
			Render()
		if err != nil {
			return err
		}
		return writePng(outFile, result)
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree cog.tif",
	Short: "render the full wmts tile tree to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cog, reader, closer, err := openCog(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer closer()

		dir := outFile
		if dir == "" {
			dir = "tiles-" + uuid.New().String()
		}
		renderer := cloudtiff.NewTileTreeRenderer(cog, reader, 256, 256).WithLogger(logger)
		indices := cog.WmtsTileTreeIndices(256, 256)
		for _, index := range indices {
			x, y, z := index[0], index[1], index[2]
			result, err := renderer.RenderTile(x, y, z)
			if err != nil {
				logger.Warn("tile skipped", zap.Ints("xyz", []int{x, y, z}), zap.Error(err))
				continue
			}
			name := filepath.Join(dir, fmt.Sprintf("%d", z), fmt.Sprintf("%d", x), fmt.Sprintf("%d.png", y))
			if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return err
			}
			if err := writePng(name, result); err != nil {
				return err
			}
		}
		logger.Info("tree rendered", zap.Int("tiles", len(indices)), zap.String("dir", dir))
		return nil
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode image.png",
	Short: "encode a png into a tiled cog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		img, err := png.Decode(f)
		if err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}
		source, err := raster.FromImage(img)
		if err != nil {
			return err
		}

		enc := cloudtiff.NewEncoder(source).
			WithTileSize(tileSize).
			WithBigTiff(bigTiff).
			WithBigEndian(bigEndian)
		if deflate {
			enc = enc.WithCompression(cloudtiff.CompressionDeflate)
		}
		if len(regionFlag) == 4 {
			enc = enc.WithProjection(epsg, cloudtiff.NewRegion(
				regionFlag[0], regionFlag[1], regionFlag[2], regionFlag[3]))
		}

		out, err := os.Create(outFile)
		if err != nil {
			return err
		}
		if err := enc.Encode(out); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	},
}

func writePng(path string, result *raster.Raster) error {
	img, err := result.Image()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
