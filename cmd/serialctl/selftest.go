package main

import (
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/oy3o/serial"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Round-trip a sample object graph through every engine",
	Long: `Builds a sample catalog holding polymorphic assets, measures it, packs it,
unpacks it and compares the result. With --out the payload also goes through
a memory-mapped file.`,
	Args: cobra.NoArgs,
	RunE: runSelftest,
}

func init() {
	selftestCmd.Flags().Bool("compact", false, "apply the compact trait, which drops pixel data and zones")
	selftestCmd.Flags().String("out", "", "also write the payload to this file and read it back")
}

func runSelftest(cmd *cobra.Command, _ []string) error {
	opts := options()
	isCompact := viper.GetBool("compact")
	if isCompact {
		opts = append(opts, serial.WithTraits(serial.TraitOf[compact]()))
	}

	in := sampleCatalog()
	size, err := serial.GetSize(in, opts...)
	if err != nil {
		return errors.Wrap(err, "size")
	}
	footprint, err := serial.GetMemoryFootprint(in, 0, opts...)
	if err != nil {
		return errors.Wrap(err, "footprint")
	}

	info, err := serial.Serialize(in, opts...)
	if err != nil {
		return errors.Wrap(err, "serialize")
	}
	defer func() { _ = info.Release() }()

	out, err := serial.Deserialize[catalog](info.Bytes(), opts...)
	if err != nil {
		return errors.Wrap(err, "deserialize")
	}
	want := expected(in, isCompact)
	if !reflect.DeepEqual(want, out) {
		return errors.Newf("round trip mismatch:\nwant %+v\ngot  %+v", want, out)
	}

	if path := viper.GetString("out"); path != "" {
		if err := fileRoundTrip(path, want, opts); err != nil {
			return err
		}
	}

	log.Info("selftest passed",
		zap.Int("size", size),
		zap.Int("footprint", footprint),
		zap.Bool("checked", viper.GetBool("checked")),
		zap.Bool("compact", isCompact),
	)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "packed size:      %d bytes\n", size)
	fmt.Fprintf(w, "memory footprint: %d bytes\n", footprint)
	fmt.Fprintf(w, "type index:       %016x\n", serial.TypeIndex(reflect.TypeFor[catalog]()))
	fmt.Fprintln(w, "registered assets:")
	for _, ti := range serial.RegisteredTypes[asset]() {
		parent := ti.Parent
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(w, "  %2d %-40s %4d bytes  parent %s\n", ti.Index, ti.Name, ti.Size, parent)
	}
	for _, a := range out.Assets {
		if a != nil {
			fmt.Fprintf(w, "  decoded %s\n", a.Describe())
		}
	}
	return nil
}

func fileRoundTrip(path string, want catalog, opts []serial.Option) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	n, err := serial.SerializeToFile(want, path, opts...)
	if err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	got, err := serial.DeserializeFromFile[catalog](path, opts...)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if !reflect.DeepEqual(want, got) {
		return errors.Newf("file round trip mismatch in %s", path)
	}
	log.Info("file round trip passed", zap.String("path", path), zap.Int("bytes", n))
	return nil
}

// expected is what unpacking in yields, given the fields the compact trait drops.
func expected(in catalog, isCompact bool) catalog {
	if !isCompact {
		return in
	}
	out := in
	out.Created.Zone = ""
	out.Assets = make([]asset, len(in.Assets))
	for i, a := range in.Assets {
		if im, ok := a.(*image); ok {
			cp := *im
			cp.Pixels = nil
			a = &cp
		}
		out.Assets[i] = a
	}
	return out
}
