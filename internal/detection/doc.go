// Package detection turns a binary shadow mask into polygons.
//
// # Pipeline
//
//  1. Contour Finding: label 8-connected foreground regions and trace the
//     outer boundary of each one
//  2. Area Filtering: drop contours whose enclosed area does not exceed the
//     configured minimum
//  3. Simplification: optionally reduce vertex count with Douglas–Peucker,
//     tolerance proportional to the contour's perimeter
//  4. Mapping: convert vertices from pixel space to target space through a
//     caller-supplied function
//
// # Coordinate System
//
// Contours use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Vertices are pixel centers, so a filled n×n square has area (n-1)²
//
// Target space is whatever the mapping function produces; the viewport
// package provides the screen/world mapping used by the detector.
//
// # Limitations
//
//   - Holes inside a region are not reported
//   - Regions one pixel wide have zero area and are filtered out whenever
//     the minimum area is non-negative
package detection
