// Package imaging provides the display-side image helpers of the shadow
// detector: decoding and caching camera frame files, encoding pipeline
// images as base64 PNG textures, drawing calibration markers on the raw
// frame, and sampling pixel colors for parameter tuning.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with the origin at the top-left corner of the
// image, X increasing rightward and Y increasing downward. This matches the
// camera pixel space used for calibration corners.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. The other functions are
// stateless and never modify their input images; DrawMarkers and
// EncodeTexture work on copies, so a published frame may be encoded while
// the pipeline produces the next one.
package imaging
