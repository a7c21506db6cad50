//go:build js && wasm

package main

import (
	"bytes"
	"syscall/js"

	pr "github.com/eli-silver/microfluidics/pkg/picamraw"
)

var (
	lastTable  *pr.LensShadingTable
	lastParams *pr.LensShadingParams
)

func main() {
	js.Global().Set("buildLensShadingTable", js.FuncOf(buildLensShadingTable))
	js.Global().Set("renderShadingOverlay", js.FuncOf(renderShadingOverlay))
	js.Global().Set("readCaptureMetadata", js.FuncOf(readCaptureMetadata))
	select {} // block forever
}

// buildLensShadingTable(fileBytes, {sensor, mode}) returns the table of a
// JPEG+RAW white capture as YAML plus summary values.
func buildLensShadingTable(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: buildLensShadingTable(fileBytes, options)")
	}
	fileBytes := copyBytes(args[0])

	rp := pr.NewRawReadParams()
	if len(args) >= 2 && args[1].Type() == js.TypeObject {
		if v := args[1].Get("sensor"); v.Type() == js.TypeString {
			rp.Sensor = v.String()
		}
		if v := args[1].Get("mode"); v.Type() == js.TypeNumber {
			rp.SensorMode = v.Int()
		}
	}

	frame, err := pr.ReadRawFromBytes(fileBytes, rp)
	if err != nil {
		return errorResult("raw parse error: " + err.Error())
	}
	channels, err := pr.SplitChannels(frame)
	if err != nil {
		return errorResult(err.Error())
	}
	params := pr.NewLensShadingParams()
	table, err := pr.BuildLensShadingTable(channels, params)
	if err != nil {
		return errorResult("lens shading error: " + err.Error())
	}
	lastTable, lastParams = table, params

	var doc bytes.Buffer
	if err := pr.EncodeLensShadingTable(&doc, table, nil); err != nil {
		return errorResult(err.Error())
	}

	lo, hi := 255, 0
	for _, g := range table.Gains {
		lo = min(lo, int(g))
		hi = max(hi, int(g))
	}
	return js.ValueOf(map[string]interface{}{
		"width":      frame.Width,
		"height":     frame.Height,
		"bayerOrder": int(frame.Order),
		"rows":       table.Rows,
		"cols":       table.Cols,
		"minGain":    lo,
		"maxGain":    hi,
		"yaml":       doc.String(),
	})
}

func renderShadingOverlay(this js.Value, args []js.Value) interface{} {
	if lastTable == nil {
		return js.Null()
	}

	jpegBytes, err := pr.RenderShadingOverlayBytes(lastTable, lastParams)
	if err != nil {
		return js.Null()
	}

	uint8Array := js.Global().Get("Uint8Array").New(len(jpegBytes))
	js.CopyBytesToJS(uint8Array, jpegBytes)
	return uint8Array
}

func readCaptureMetadata(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: readCaptureMetadata(fileBytes)")
	}
	md, err := pr.ReadMetadataFromBytes(copyBytes(args[0]))
	if err != nil {
		return errorResult(err.Error())
	}
	result := map[string]interface{}{
		"model": md.CameraModel(),
		"text":  md.String(),
	}
	if t, ok := md.ExposureTime(); ok {
		result["exposureTime"] = t
	}
	if g, ok := md.AnalogGain(); ok {
		result["analogGain"] = g
	}
	if g, ok := md.DigitalGain(); ok {
		result["digitalGain"] = g
	}
	return js.ValueOf(result)
}

func copyBytes(v js.Value) []byte {
	b := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(b, v)
	return b
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
