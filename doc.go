// Package vp8rd is the decision core of a VP8 video encoder: motion
// search, quantization with trellis optimization, rate-distortion mode
// decision, two-pass rate control and row-parallel scheduling.
//
// The package consumes planar YUV 4:2:0 frames and produces, for every
// macroblock, the chosen prediction mode, reference frame, motion vectors,
// quantized coefficients and skip flag, together with a per-frame
// quantizer and bit target. Bitstream packing, loop filtering and the
// decoder are left to the caller.
//
// A one-pass encode:
//
//	cfg := vp8rd.DefaultConfig(640, 480)
//	enc, err := vp8rd.NewEncoder(cfg)
//	if err != nil {
//		return err
//	}
//	defer enc.Close()
//	res, err := enc.EncodeYCbCr(img) // or EncodeI420(raw)
//
// Two-pass encoding runs the first pass with Config.Pass = 1, collects
// FrameResult.FirstPass from every frame, and feeds the records back in
// Config.FirstPassStats with Config.Pass = 2. Plan previews the second
// pass without encoding.
package vp8rd
