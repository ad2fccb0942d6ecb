package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/qgraph/internal/schema"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// shopSchema is a small model covering every table kind: an entity with an
// embedded attribute, a to-one foreign key, a many-to-many join table and
// an element collection.
func shopSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]*schema.EntityType{
		{
			Name: "Customer", Table: "customers", IdentityOf: []string{"id"},
			Attributes: []*schema.Attribute{
				{Name: "id", Kind: schema.KindScalar, Family: schema.FamilyInteger},
				{Name: "email", Kind: schema.KindScalar, Family: schema.FamilyString},
				{Name: "since", Kind: schema.KindScalar, Family: schema.FamilyDate},
				{Name: "vip", Kind: schema.KindScalar, Family: schema.FamilyBoolean},
				{Name: "address", Kind: schema.KindEmbedded, Target: "Address"},
				{Name: "orders", Kind: schema.KindToMany, Target: "Order", MappedBy: "customer"},
				{Name: "phones", Kind: schema.KindElementCollection, Family: schema.FamilyString,
					CollectionTable: "customer_phones", CollectionKey: []string{"customer_id"}, Column: "phone"},
			},
		},
		{
			Name: "Order", Table: "orders", IdentityOf: []string{"id"},
			Attributes: []*schema.Attribute{
				{Name: "id", Kind: schema.KindScalar, Family: schema.FamilyUUID},
				{Name: "total", Kind: schema.KindScalar, Family: schema.FamilyFloat},
				{Name: "customer", Kind: schema.KindToOne, Target: "Customer", Columns: []string{"customer_id"}},
				{Name: "items", Kind: schema.KindToMany, Target: "Product", JoinTable: &schema.JoinTable{
					Name: "order_items", OwnerColumns: []string{"order_id"}, TargetColumns: []string{"product_id"},
				}},
			},
		},
		{
			Name: "Product", Table: "products", IdentityOf: []string{"sku"},
			Attributes: []*schema.Attribute{
				{Name: "sku", Kind: schema.KindScalar, Family: schema.FamilyString},
			},
		},
	}, []*schema.Embeddable{
		{
			Name: "Address",
			Attributes: []*schema.Attribute{
				{Name: "city", Kind: schema.KindScalar, Family: schema.FamilyString, Column: "address_city"},
			},
		},
	})
	if err != nil {
		t.Fatalf("schema.New() failed: %v", err)
	}
	return s
}
