package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"auroraetl/internal/mask"
	"auroraetl/internal/source"
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindDouble
	kindBool
	kindTimestamp
)

var kinds = map[string]kind{
	"TINYINT": kindInt, "SMALLINT": kindInt, "MEDIUMINT": kindInt, "INT": kindInt,
	"INTEGER": kindInt, "BIGINT": kindInt, "YEAR": kindInt,
	"INT2": kindInt, "INT4": kindInt, "INT8": kindInt, "SERIAL": kindInt, "BIGSERIAL": kindInt,

	"FLOAT": kindDouble, "DOUBLE": kindDouble, "REAL": kindDouble,
	"FLOAT4": kindDouble, "FLOAT8": kindDouble, "DOUBLE PRECISION": kindDouble,

	"BOOL": kindBool, "BOOLEAN": kindBool,

	"DATE": kindTimestamp, "DATETIME": kindTimestamp, "TIMESTAMP": kindTimestamp, "TIMESTAMPTZ": kindTimestamp,
}

func kindOf(dbType string) kind {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	t = strings.TrimPrefix(t, "UNSIGNED ")
	if k, ok := kinds[t]; ok {
		return k
	}
	return kindString
}

func fieldTag(name string, k kind) string {
	switch k {
	case kindInt:
		return fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", name)
	case kindDouble:
		return fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", name)
	case kindBool:
		return fmt.Sprintf("name=%s, type=BOOLEAN, repetitiontype=OPTIONAL", name)
	case kindTimestamp:
		return fmt.Sprintf("name=%s, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL", name)
	default:
		return fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", name)
	}
}

type jsonSchemaNode struct {
	Tag    string           `json:"Tag"`
	Fields []jsonSchemaNode `json:"Fields,omitempty"`
}

// SchemaFor builds a parquet-go JSON schema with one OPTIONAL field per
// source column, in column order.
func SchemaFor(columns []source.Column) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("schema needs at least one column")
	}
	root := jsonSchemaNode{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, c := range columns {
		if c.Name == "" || strings.ContainsAny(c.Name, ",= \t") {
			return "", fmt.Errorf("column name %q cannot be written to parquet", c.Name)
		}
		root.Fields = append(root.Fields, jsonSchemaNode{Tag: fieldTag(c.Name, kindOf(c.DatabaseType))})
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// rowJSON renders one record in the shape parquet-go's JSON writer expects.
// Timestamps become epoch millis; unknown columns are dropped.
func rowJSON(columns []source.Column, rec mask.Record) ([]byte, error) {
	row := make(map[string]any, len(columns))
	for _, c := range columns {
		v, ok := rec[c.Name]
		if !ok || v == nil {
			continue
		}
		if t, isTime := v.(time.Time); isTime {
			v = t.UnixMilli()
		}
		if kindOf(c.DatabaseType) == kindString {
			if _, isString := v.(string); !isString {
				v = fmt.Sprint(v)
			}
		}
		row[c.Name] = v
	}
	return json.Marshal(row)
}

// EncodeParquet writes records to an in-memory snappy Parquet file.
func EncodeParquet(schema string, columns []source.Column, records []mask.Record) ([]byte, error) {
	bf := buffer.NewBufferFile()

	pw, err := writer.NewJSONWriter(schema, bf, 1)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, rec := range records {
		line, err := rowJSON(columns, rec)
		if err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("parquet write record %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("parquet write stop: %w", err)
	}
	return bf.Bytes(), nil
}
