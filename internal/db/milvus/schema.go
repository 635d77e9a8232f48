package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/retidev/preciorag/internal/db"
	"github.com/retidev/preciorag/internal/domain"
)

// collectionSchema declares the full catalog schema: a string primary key,
// descriptive and numeric scalar fields, and the embedding vector.
func collectionSchema(name string, dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(name).
		WithDescription("retail products for grounded retrieval").
		WithField(entity.NewField().WithName(db.FieldID).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(128).
			WithIsPrimaryKey(true).WithIsAutoID(false)).
		WithField(entity.NewField().WithName(db.FieldName).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
		WithField(entity.NewField().WithName(db.FieldBrand).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
		WithField(entity.NewField().WithName(db.FieldCategory).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
		WithField(entity.NewField().WithName(db.FieldStore).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
		WithField(entity.NewField().WithName(db.FieldCountry).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(16)).
		WithField(entity.NewField().WithName(db.FieldPrice).
			WithDataType(entity.FieldTypeDouble)).
		WithField(entity.NewField().WithName(db.FieldUnit).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(16)).
		WithField(entity.NewField().WithName(db.FieldSize).
			WithDataType(entity.FieldTypeDouble)).
		WithField(entity.NewField().WithName(db.FieldCurrency).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(16)).
		WithField(entity.NewField().WithName(db.FieldLastSeen).
			WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(db.FieldURL).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName(db.FieldCanonicalText).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
		WithField(entity.NewField().WithName(db.FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))
}

// validateSchema checks an existing collection against the expected fields
// and configured embedding dimension. Runs before any write so ingestion
// aborts on an incompatible collection.
func validateSchema(schema *entity.Schema, collection string, dim int) error {
	byName := make(map[string]*entity.Field, len(schema.Fields))
	for _, f := range schema.Fields {
		byName[f.Name] = f
	}

	for _, name := range db.ScalarFields {
		if _, ok := byName[name]; !ok {
			return &domain.SchemaMismatchError{Collection: collection, Field: name}
		}
	}

	emb, ok := byName[db.FieldEmbedding]
	if !ok {
		return &domain.SchemaMismatchError{Collection: collection, Field: db.FieldEmbedding}
	}
	if raw, ok := emb.TypeParams[entity.TypeParamDim]; ok {
		got, err := strconv.Atoi(raw)
		if err == nil && got != dim {
			return &domain.DimensionMismatchError{Collection: collection, Got: got, Want: dim}
		}
	}
	return nil
}
