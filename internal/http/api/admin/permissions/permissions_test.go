package permissions

import "testing"

func TestNormalizeAndValidate(t *testing.T) {
	got := Normalize([]string{" GET /v0/admin/plans", "GET /v0/admin/plans", "", "GET /v0/admin/users"})
	if len(got) != 2 || got[0] != "GET /v0/admin/plans" || got[1] != "GET /v0/admin/users" {
		t.Fatalf("Normalize = %v", got)
	}
	if err := Validate(got); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := Validate([]string{"DELETE /v0/admin/plans"}); err == nil {
		t.Fatalf("expected unknown permission to be rejected")
	}
}

func TestParseAndHas(t *testing.T) {
	perms := Parse([]byte(`["PUT /v0/admin/settings/:key","PUT /v0/admin/settings/:key"]`))
	if len(perms) != 1 {
		t.Fatalf("Parse = %v", perms)
	}
	if !Has(perms, Key("put", "/v0/admin/settings/:key")) {
		t.Fatalf("expected permission match")
	}
	if Has(perms, "") || len(Parse([]byte("not json"))) != 0 {
		t.Fatalf("unexpected permission result")
	}
}

func TestDefinitionsAreUnique(t *testing.T) {
	defs := Definitions()
	if len(defs) != len(known) {
		t.Fatalf("duplicate definitions: %d defs, %d keys", len(defs), len(known))
	}
	defs[0].Label = "changed"
	if Definitions()[0].Label == "changed" {
		t.Fatalf("Definitions must return a copy")
	}
}
