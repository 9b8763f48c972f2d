package catalogimport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/eyewear-store/internal/domain/product"
)

const maxLineBytes = 1 << 20

// streamFeed opens a gzip-compressed JSON-lines feed and calls fn for every
// non-blank line. line is only valid until fn returns.
func streamFeed(ctx context.Context, path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for scanner.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// decodeSKU reads only the sku field of a feed line.
func decodeSKU(line []byte) (string, error) {
	var sku string
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "sku" {
			return d.Skip()
		}
		s, err := d.Str()
		sku = strings.TrimSpace(s)
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "decode sku")
	}
	return sku, nil
}

// ParseRecord parses one feed record into a product. Records are active
// unless they say otherwise.
func ParseRecord(line []byte) (product.Product, error) {
	p := product.Product{Active: true}
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "sku":
			p.SKU, err = d.Str()
			p.SKU = strings.TrimSpace(p.SKU)
		case "name":
			p.Name, err = d.Str()
			p.Name = strings.TrimSpace(p.Name)
		case "brand":
			p.Brand, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "category":
			var c string
			c, err = d.Str()
			p.Category = product.Category(c)
		case "price":
			p.Price, err = decodePrice(d)
		case "stock":
			p.Stock, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		case "glasses":
			p.Glasses = new(product.Glasses)
			err = decodeSection(d, p.Glasses)
		case "sunglasses":
			p.Sunglasses = new(product.Sunglasses)
			err = decodeSection(d, p.Sunglasses)
		case "contact_lenses":
			p.ContactLenses = new(product.ContactLenses)
			err = decodeSection(d, p.ContactLenses)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return product.Product{}, err
	}
	return p, nil
}

// decodePrice accepts "129.00" as well as 129.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", d.Next())
	}
}

// decodeSection unmarshals a subtype object with its struct tags, the same
// layout the products table stores as JSONB.
func decodeSection(d *jx.Decoder, v any) error {
	raw, err := d.Raw()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
