package main

import (
	"fmt"
	"time"

	"github.com/oy3o/serial"
)

// asset is the polymorphic root of the sample catalog.
type asset interface {
	Describe() string
}

type assetBase struct {
	ID    uint64
	Owner string
}

func (b *assetBase) Describe() string { return fmt.Sprintf("asset %d", b.ID) }

type document struct {
	assetBase
	Pages uint32
	Title string
}

func (d *document) Describe() string { return fmt.Sprintf("document %q (%d pages)", d.Title, d.Pages) }

type image struct {
	assetBase
	Width, Height uint16
	Pixels        []byte
}

func (im *image) Describe() string { return fmt.Sprintf("image %dx%d", im.Width, im.Height) }

// stamp is a time without the location pointer time.Time carries.
type stamp struct {
	Unix int64
	Zone string
}

type status uint8

const (
	draft status = iota
	published
)

type catalog struct {
	Name    string
	State   status
	Created stamp
	Assets  []asset
	Index   map[string]uint64
	Note    serial.Variant2[string, int64]
}

// compact drops bulky payloads from a traversal.
type compact struct{}

func init() {
	serial.RegisterRoot[asset, assetBase](func(a *serial.Archive, b *assetBase) {
		a.Process(&b.ID, &b.Owner)
	})
	serial.RegisterDerived[asset, assetBase, document](func(a *serial.Archive, d *document) {
		a.Process(&d.Pages, &d.Title)
	})
	serial.RegisterDerived[asset, assetBase, image](func(a *serial.Archive, im *image) {
		a.Process(&im.Width, &im.Height)
		if !serial.Has[compact](a) {
			a.ProcessNamed("Pixels", &im.Pixels)
		}
	})

	serial.RegisterFunc[stamp](func(a *serial.Archive, s *stamp) {
		a.ProcessNamed("Unix", &s.Unix)
	}, serial.WhenTraits(serial.TraitOf[compact]()))
	serial.RegisterFunc[stamp](func(a *serial.Archive, s *stamp) {
		a.ProcessNamed("Unix", &s.Unix)
		a.ProcessNamed("Zone", &s.Zone)
	})
}

func sampleCatalog() catalog {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := catalog{
		Name:    "sample",
		State:   published,
		Created: stamp{Unix: now.Unix(), Zone: now.Location().String()},
		Assets: []asset{
			&document{assetBase: assetBase{ID: 1, Owner: "ops"}, Pages: 12, Title: "runbook"},
			nil,
			&image{assetBase: assetBase{ID: 2, Owner: "design"}, Width: 4, Height: 4, Pixels: make([]byte, 16)},
		},
		Index: map[string]uint64{"runbook": 1, "logo": 2},
	}
	c.Note.SetA("reviewed")
	return c
}
