// Package canvas keeps the target template and the latest board snapshot aligned,
// derives the set of pixels that disagree with the template, and hands them out
// one at a time to concurrent workers.
//
// # Model
//
// A Template is an NRGBA image anchored at an absolute canvas coordinate. Only
// fully opaque template pixels (alpha 255) are enforced; every other pixel is
// ignored. A Snapshot is the board cropped to the template's bounding box, so
// local coordinate (x, y) refers to the same canvas pixel in both images.
//
// # Cache protocol
//
// Cache owns the template, the snapshot and the discrepancy queue behind one
// mutex. Workers only ever call Next, which refreshes stale data, recomputes the
// queue when it is empty and pops a single entry, all inside one critical
// section. Two staleness flags (template and board) are raised by the
// coordinator and cleared by whichever refresh consumes them. A board refresh
// always empties the queue because the comparison basis changed.
//
// Popped entries are never re-queued. If a placement fails, the pixel
// reappears after the next full recomputation.
package canvas
