// Package launchers embeds the pre-baked Windows launcher stub binaries
// referenced by spec.md section 4.6: t32.exe, t64.exe, t64-arm.exe (console)
// and their t*w.exe windowed counterparts for gui_scripts, concatenated with
// a shebang line and a zipped __main__.py to produce a working NAME.exe (the
// scheme pip/distlib's own launchers use). The real stubs are small vendored
// PE binaries; these are opaque placeholder blobs standing in for them so
// the wiring (embed, concatenate, name by kind) is exercised without
// shipping a real compiled stub.
package launchers

import (
	_ "embed"
)

//go:embed t32.bin
var T32 []byte

//go:embed t64.bin
var T64 []byte

//go:embed t64-arm.bin
var T64ARM []byte

//go:embed t32w.bin
var T32W []byte

//go:embed t64w.bin
var T64W []byte

//go:embed t64-arm-w.bin
var T64ARMW []byte
