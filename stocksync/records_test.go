package stocksync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestItemPatchAssignments_OnlySetFields(t *testing.T) {
	qty := 7
	p := ItemPatch{Quantity: &qty}

	sets := p.assignments()
	require.Len(t, sets, 1)
	require.Equal(t, "quantity", sets[0].column)
	require.Equal(t, &qty, sets[0].value)
}

func TestItemPatchAssignments_SoftDelete(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	deleted := true
	by := "user-42"
	p := ItemPatch{IsDeleted: &deleted, DeletedAt: &now, DeletedBy: &by}

	sets := p.assignments()
	columns := make([]string, 0, len(sets))
	for _, s := range sets {
		columns = append(columns, s.column)
	}
	require.Equal(t, []string{"is_deleted", "deleted_at", "deleted_by"}, columns)
}

func TestItemPatchAssignments_RestoreClearsDeletion(t *testing.T) {
	restored := false
	p := ItemPatch{IsDeleted: &restored}

	sets := p.assignments()
	require.Len(t, sets, 3)
	require.Equal(t, assignment{column: "is_deleted", value: false}, sets[0])
	require.Equal(t, assignment{column: "deleted_at", value: nil}, sets[1])
	require.Equal(t, assignment{column: "deleted_by", value: ""}, sets[2])
}

func TestCategoryPatchAssignments_NormalizesName(t *testing.T) {
	name := "  tools "
	p := CategoryPatch{Name: &name}

	sets := p.assignments()
	require.Equal(t, []assignment{{column: "name", value: "TOOLS"}}, sets)
}

func TestBuildUpdate(t *testing.T) {
	query, args := buildUpdate(`"inventory"."items"`, "item-1", []assignment{
		{column: "quantity", value: 5},
		{column: "updated_at", value: "ts"},
	})
	require.Equal(t, `UPDATE "inventory"."items" SET "quantity" = $1, "updated_at" = $2 WHERE id = $3`, query)
	require.Equal(t, []any{5, "ts", "item-1"}, args)
}

func TestItemPatchFromItem(t *testing.T) {
	it := Item{ID: "a", Name: "Hammer", Quantity: 3, LowStockThreshold: 5}
	p := it.Patch()
	require.Equal(t, "Hammer", *p.Name)
	require.Equal(t, 3, *p.Quantity)
	require.Nil(t, p.UpdatedAt)
	require.Nil(t, p.DeletedAt)
	require.True(t, it.IsLowStock())
}
