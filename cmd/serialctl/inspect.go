package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/oy3o/serial"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Describe a payload file written by SerializeToFile",
	Long: `Maps a payload file and prints its size, checksum and a hex preview.
With --checked the outermost frame is decoded: the leading type index is
resolved against the types this binary knows and the trailing size is
compared with the file length.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Int("limit", 64, "number of bytes to preview, 0 for all")
}

// knownTypes are indexed up front so checked frames can be named.
var knownTypes = []reflect.Type{
	reflect.TypeFor[catalog](),
	reflect.TypeFor[[]asset](),
	reflect.TypeFor[assetBase](),
	reflect.TypeFor[document](),
	reflect.TypeFor[image](),
	reflect.TypeFor[stamp](),
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	m, err := serial.NewMappedFileBuffer(path, 0, false)
	if err != nil {
		return err
	}
	defer func() { _ = m.Release() }()

	data := m.Bytes()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "file:     %s\n", m.Path())
	fmt.Fprintf(w, "size:     %d bytes\n", m.Len())
	fmt.Fprintf(w, "xxhash64: %016x\n", xxhash.Sum64(data))

	if viper.GetBool("checked") {
		describeFrame(cmd, data)
	}

	preview := data
	if limit := viper.GetInt("limit"); limit > 0 && limit < len(preview) {
		preview = preview[:limit]
	}
	fmt.Fprintf(w, "\n%s", hex.Dump(preview))
	log.Debug("inspected payload", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// describeFrame decodes the outermost frame of an error-checked payload.
func describeFrame(cmd *cobra.Command, data []byte) {
	w := cmd.OutOrStdout()
	if len(data) < 16 {
		fmt.Fprintln(w, "frame:    too short for a checked frame")
		return
	}
	for _, t := range knownTypes {
		serial.TypeIndex(t)
	}
	id := binary.NativeEndian.Uint64(data[:8])
	name, ok := serial.TypeNameOf(id)
	if !ok {
		name = "unknown to this binary"
	}
	fmt.Fprintf(w, "type:     %016x (%s)\n", id, name)

	used := binary.NativeEndian.Uint64(data[len(data)-8:])
	body := uint64(len(data) - 16)
	if used == body {
		fmt.Fprintf(w, "body:     %d bytes, trailer agrees\n", body)
	} else {
		fmt.Fprintf(w, "body:     %d bytes, trailer claims %d\n", body, used)
	}
}
