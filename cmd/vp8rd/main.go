// Command vp8rd runs the VP8 mode decision engine over a video clip.
//
// Usage:
//
//	vp8rd analyze [options] <input>   first pass, writes frame statistics
//	vp8rd plan [options] <stats>      second pass bit and quantizer plan
//	vp8rd encode [options] <input>    mode decision, per-frame summary
//
// Inputs are Y4M files, raw I420 (with -size), a still image or a
// directory of stills (PNG, JPEG, GIF, BMP, TIFF, WebP).
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/deepteams/vp8rd"
	"github.com/deepteams/vp8rd/internal/firstpass"
	"github.com/deepteams/vp8rd/internal/rdopt"
	"github.com/deepteams/vp8rd/internal/yuv"
)

func main() {
	logger := log.New(os.Stderr, "vp8rd: ", 0)
	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		if errors.Cause(err) == flag.ErrHelp {
			return
		}
		logger.Print(err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, logger *log.Logger) error {
	if len(args) < 1 {
		printUsage(logger.Writer())
		return errors.New("missing command")
	}
	switch args[0] {
	case "analyze":
		return runAnalyze(args[1:], stdout, logger)
	case "plan":
		return runPlan(args[1:], stdout)
	case "encode":
		return runEncode(args[1:], stdout, logger)
	case "-h", "-help", "--help", "help":
		printUsage(stdout)
		return nil
	}
	printUsage(logger.Writer())
	return errors.Errorf("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage:
  vp8rd analyze [options] <input>   First pass: write frame statistics
  vp8rd plan [options] <stats>      Second pass plan from statistics
  vp8rd encode [options] <input>    Mode decision with per-frame summary

Inputs: .y4m, raw I420 (needs -size), an image or a directory of images.
Use "-" to read raw or Y4M from stdin.

Run "vp8rd <command> -h" for command-specific options.
`)
}

// rateFlags are the rate control options shared by plan and encode.
type rateFlags struct {
	bitrate    int
	fps        float64
	size       string
	minQ, maxQ int
	end        string
	cq         int
	kf, gf     int
	bias       int
}

func (r *rateFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&r.bitrate, "bitrate", 800, "target bitrate in kbit/s")
	fs.Float64Var(&r.fps, "fps", 0, "frame rate (0 = from input, else 30)")
	fs.StringVar(&r.size, "size", "", "frame size WxH (raw input, or scale stills)")
	fs.IntVar(&r.minQ, "minq", 4, "minimum quantizer index 0-127")
	fs.IntVar(&r.maxQ, "maxq", 63, "maximum quantizer index 0-127")
	fs.StringVar(&r.end, "end", "vbr", "rate control: vbr/cbr/cq")
	fs.IntVar(&r.cq, "cq", 10, "constrained quality level")
	fs.IntVar(&r.kf, "kf", firstpass.DefaultKeyFreqMax, "maximum key frame interval")
	fs.IntVar(&r.gf, "gf", firstpass.DefaultMaxGF, "maximum golden frame interval")
	fs.IntVar(&r.bias, "bias", 50, "two-pass VBR bias 0-100")
}

// apply copies the flags into cfg. srcFPS is the input's own rate.
func (r *rateFlags) apply(cfg *vp8rd.Config, srcFPS float64) error {
	end, err := parseEndUsage(r.end)
	if err != nil {
		return err
	}
	cfg.TargetBitrate = r.bitrate
	cfg.FrameRate = 30
	switch {
	case r.fps > 0:
		cfg.FrameRate = r.fps
	case srcFPS > 0:
		cfg.FrameRate = srcFPS
	}
	cfg.MinQ, cfg.MaxQ = r.minQ, r.maxQ
	cfg.EndUsage = end
	cfg.CQLevel = r.cq
	cfg.KeyFreqMax = r.kf
	cfg.MaxGFInterval = r.gf
	if cfg.MinGFInterval > r.gf {
		cfg.MinGFInterval = r.gf
	}
	cfg.TwoPassVBRBias = r.bias
	return nil
}

func parseSize(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	var w, h int
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 0, 0, errors.Errorf("invalid size %q (want WxH)", s)
	}
	return w, h, nil
}

func parseEndUsage(s string) (vp8rd.EndUsage, error) {
	switch strings.ToLower(s) {
	case "vbr":
		return vp8rd.VBR, nil
	case "cbr":
		return vp8rd.CBR, nil
	case "cq":
		return vp8rd.ConstrainedQuality, nil
	}
	return 0, errors.Errorf("unknown rate control %q (use vbr/cbr/cq)", s)
}

func parseMode(s string) (vp8rd.Mode, error) {
	switch strings.ToLower(s) {
	case "good":
		return vp8rd.GoodQuality, nil
	case "best":
		return vp8rd.BestQuality, nil
	case "rt", "realtime":
		return vp8rd.Realtime, nil
	}
	return 0, errors.Errorf("unknown mode %q (use good/best/rt)", s)
}

func parseComposition(s string) (rdopt.BiasComposition, error) {
	for _, c := range []rdopt.BiasComposition{rdopt.ComposeMultiply, rdopt.ComposeDenoiserOnly, rdopt.ComposeDotOnly} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown composition %q (use multiply/denoiser/dot)", s)
}

// forEachFrame feeds up to limit frames (0 for all) of src to fn.
func forEachFrame(src frameSource, limit int, fn func(f *yuv.Frame) error) (int, error) {
	w, h := src.Size()
	f, err := yuv.NewFrame(w, h)
	if err != nil {
		return 0, err
	}
	defer f.Release()
	n := 0
	for limit <= 0 || n < limit {
		if err := src.Next(f); err != nil {
			if err == io.EOF {
				break
			}
			return n, errors.Wrapf(err, "frame %d", n)
		}
		if err := fn(f); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func statsPath(input string) string {
	if input == "-" {
		return "stats.fpf"
	}
	return strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".fpf"
}

// --- analyze ---

func runAnalyze(args []string, stdout io.Writer, logger *log.Logger) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	var rf rateFlags
	rf.register(fs)
	output := fs.String("o", "", "statistics output (default: <input>.fpf)")
	frames := fs.Int("frames", 0, "frames to read (0 = all)")
	verbose := fs.Bool("v", false, "log every frame")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("analyze: missing input\nUsage: vp8rd analyze [options] <input>")
	}
	input := fs.Arg(0)
	w, h, err := parseSize(rf.size)
	if err != nil {
		return err
	}
	src, err := openSource(input, w, h)
	if err != nil {
		return err
	}
	defer src.Close()

	w, h = src.Size()
	cfg := vp8rd.DefaultConfig(w, h)
	if err := rf.apply(&cfg, src.FrameRate()); err != nil {
		return err
	}
	cfg.Pass = 1
	if *verbose {
		cfg.Logger = logger
	}
	enc, err := vp8rd.NewEncoder(cfg)
	if err != nil {
		return err
	}
	defer enc.Close()

	if *output == "" {
		*output = statsPath(input)
	}
	out, err := os.Create(*output)
	if err != nil {
		return err
	}
	var stats []firstpass.Stats
	n, err := forEachFrame(src, *frames, func(f *yuv.Frame) error {
		res, err := enc.EncodeFrame(f)
		if err != nil {
			return err
		}
		stats = append(stats, *res.FirstPass)
		return firstpass.WriteStats(out, res.FirstPass)
	})
	if err != nil {
		out.Close()
		os.Remove(*output)
		return errors.Wrap(err, "analyze")
	}
	if err := out.Close(); err != nil {
		return err
	}
	if n == 0 {
		return errors.New("analyze: input has no frames")
	}

	total := firstpass.Sum(stats)
	fmt.Fprintf(stdout, "%s: %d frames %dx%d, intra %.0f coded %.0f per frame, %.1f%% inter -> %s\n",
		input, n, w, h, total.IntraError/total.Count, total.CodedError/total.Count,
		100*total.PcntInter/total.Count, *output)
	return nil
}

// --- plan ---

func runPlan(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	var rf rateFlags
	rf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("plan: missing statistics file\nUsage: vp8rd plan -size WxH [options] <stats>")
	}
	w, h, err := parseSize(rf.size)
	if err != nil {
		return err
	}
	if w == 0 {
		return errors.New("plan: -size is required")
	}
	stats, err := readStatsFile(fs.Arg(0))
	if err != nil {
		return err
	}

	cfg := vp8rd.DefaultConfig(w, h)
	if err := rf.apply(&cfg, 0); err != nil {
		return err
	}
	cfg.FirstPassStats = stats
	plans, err := vp8rd.Plan(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%5s %-6s %6s %8s %4s %4s\n", "frame", "type", "boost", "bits", "minq", "maxq")
	var total int64
	for _, fp := range plans {
		typ := "inter"
		switch {
		case fp.Key:
			typ = "key"
		case fp.Golden:
			typ = "golden"
		}
		fmt.Fprintf(stdout, "%5d %-6s %6d %8d %4d %4d\n", fp.Frame, typ, fp.Boost, fp.TargetBits, fp.MinQ, fp.MaxQ)
		total += int64(fp.TargetBits)
	}
	secs := float64(len(plans)) / cfg.FrameRate
	fmt.Fprintf(stdout, "%d frames, %d bits, %.1f kbit/s\n", len(plans), total, float64(total)/secs/1000)
	return nil
}

func readStatsFile(path string) ([]firstpass.Stats, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	stats, err := firstpass.ReadAll(in)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(stats) == 0 {
		return nil, errors.Errorf("%s holds no statistics", path)
	}
	return stats, nil
}

// --- encode ---

func runEncode(args []string, stdout io.Writer, logger *log.Logger) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	var rf rateFlags
	rf.register(fs)
	mode := fs.String("mode", "good", "speed family: good/best/rt")
	cpu := fs.Int("cpu", 0, "cpu-used -16..16 (rt: negative fixes the speed)")
	threads := fs.Int("threads", 1, "row worker goroutines")
	pass := fs.Int("pass", 0, "0 one pass, 2 second pass (needs -stats)")
	statsFile := fs.String("stats", "", "first pass statistics for -pass 2")
	noise := fs.Int("noise", 0, "noise sensitivity 0-6")
	screen := fs.Bool("screen", false, "screen content: disable camera biases")
	compose := fs.String("compose", "multiply", "bias composition: multiply/denoiser/dot")
	trellis := fs.Bool("trellis", true, "trellis coefficient optimization")
	breakout := fs.Int("breakout", rdopt.DefaultEncodeBreakout, "encode breakout SSE (0 = off)")
	recon := fs.String("recon", "", "write the reconstruction as raw I420")
	frames := fs.Int("frames", 0, "frames to encode (0 = all)")
	verbose := fs.Bool("v", false, "log every frame")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("encode: missing input\nUsage: vp8rd encode [options] <input>")
	}
	input := fs.Arg(0)
	w, h, err := parseSize(rf.size)
	if err != nil {
		return err
	}
	src, err := openSource(input, w, h)
	if err != nil {
		return err
	}
	defer src.Close()

	w, h = src.Size()
	cfg := vp8rd.DefaultConfig(w, h)
	if err := rf.apply(&cfg, src.FrameRate()); err != nil {
		return err
	}
	if cfg.Mode, err = parseMode(*mode); err != nil {
		return err
	}
	if cfg.BiasComposition, err = parseComposition(*compose); err != nil {
		return err
	}
	cfg.CPUUsed = *cpu
	cfg.Threads = *threads
	cfg.NoiseSensitivity = *noise
	cfg.ScreenContent = *screen
	cfg.OptimizeCoefficients = *trellis
	cfg.EncodeBreakout = *breakout
	switch *pass {
	case 0:
	case 2:
		if *statsFile == "" {
			return errors.New("encode: -pass 2 needs -stats")
		}
		if cfg.FirstPassStats, err = readStatsFile(*statsFile); err != nil {
			return err
		}
	default:
		return errors.Errorf("encode: -pass %d (use analyze for the first pass)", *pass)
	}
	cfg.Pass = *pass
	if *verbose {
		cfg.Logger = logger
	}
	enc, err := vp8rd.NewEncoder(cfg)
	if err != nil {
		return err
	}
	defer enc.Close()

	var reconOut *os.File
	if *recon != "" {
		if reconOut, err = os.Create(*recon); err != nil {
			return err
		}
		defer reconOut.Close()
	}

	var totalBits int64
	var raw []byte
	n, err := forEachFrame(src, *frames, func(f *yuv.Frame) error {
		res, err := enc.EncodeFrame(f)
		if err != nil {
			return err
		}
		totalBits += int64(res.EstimatedBits)
		fmt.Fprintf(stdout, "%5d %-6s q=%3d target=%7d est=%7d skips=%4d speed=%2d\n",
			res.Frame, res.Type, res.QIndex, res.TargetBits, res.EstimatedBits, res.Skips, res.Speed)
		if reconOut != nil {
			raw = res.Recon.AppendRaw(raw[:0])
			if _, err := reconOut.Write(raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	if n == 0 {
		return errors.New("encode: input has no frames")
	}
	secs := float64(n) / cfg.FrameRate
	fmt.Fprintf(stdout, "%d frames, %d bits estimated, %.1f kbit/s (target %d)\n",
		n, totalBits, float64(totalBits)/secs/1000, cfg.TargetBitrate)
	if reconOut != nil {
		return reconOut.Close()
	}
	return nil
}
