package bsdl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepositoryWildcardLookup(t *testing.T) {
	repo := NewRepository()
	p, err := LoadProfile("wild.bsd", strings.NewReader(simpleBSDL("WILD", "0000000000000000000000000000XXX1")))
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if err := repo.Add(p); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for _, id := range []uint32{0x1, 0x5, 0xB} {
		got, err := repo.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup failed for id 0x%X: %v", id, err)
		}
		if got.Entity != "WILD" {
			t.Fatalf("Lookup(0x%X) = %s", id, got.Entity)
		}
	}
	if _, err := repo.Lookup(0x11); err == nil {
		t.Fatal("Lookup matched a fixed bit that differs")
	}
}

func TestRepositoryExactBeatsWildcard(t *testing.T) {
	repo := NewRepository()
	for _, src := range []string{
		simpleBSDL("WILD", "0000000000000000000000000000XXX1"),
		simpleBSDL("EXACT", "00000000000000000000000000000101"),
	} {
		p, err := LoadProfile("dev.bsd", strings.NewReader(src))
		if err != nil {
			t.Fatalf("LoadProfile failed: %v", err)
		}
		if err := repo.Add(p); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if repo.Len() != 2 {
		t.Fatalf("Len() = %d", repo.Len())
	}
	if p, _ := repo.Lookup(0x5); p.Entity != "EXACT" {
		t.Fatalf("Lookup(0x5) = %s, want EXACT", p.Entity)
	}
	if p, _ := repo.Lookup(0x3); p.Entity != "WILD" {
		t.Fatalf("Lookup(0x3) = %s, want WILD", p.Entity)
	}
}

func TestRepositoryRejectsProfileWithoutIDCode(t *testing.T) {
	p, err := LoadProfile("plain.bsd", strings.NewReader(`
entity PLAIN is
	attribute INSTRUCTION_LENGTH of PLAIN : entity is 4;
	attribute INSTRUCTION_OPCODE of PLAIN : entity is "BYPASS (1111)";
end PLAIN;
`))
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if err := NewRepository().Add(p); err == nil {
		t.Fatal("profile without IDCODE accepted")
	}
}

func TestRepositoryLoadDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "vendor")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "dtm.bsd"):     sampleBSDL,
		filepath.Join(sub, "device.BSDL"): simpleBSDL("DIRDEV", "00000000000000000000000000000001"),
		filepath.Join(dir, "notes.txt"):   "not a BSDL file",
	}
	for path, text := range files {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	repo := NewRepository()
	if err := repo.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if repo.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", repo.Len())
	}
	if p, err := repo.Lookup(1); err != nil || p.Entity != "DIRDEV" {
		t.Fatalf("Lookup(1) = %v, %v", p, err)
	}
	if p, err := repo.Lookup(0x10000913); err != nil || p.Entity != "RV_DTM" {
		t.Fatalf("Lookup(0x10000913) = %v, %v", p, err)
	}

	broken := filepath.Join(dir, "broken.bsd")
	if err := os.WriteFile(broken, []byte("entity BROKEN is"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewRepository().LoadDir(dir); err == nil {
		t.Fatal("LoadDir ignored a broken file")
	}
	if err := NewRepository().LoadFiles(broken); err == nil {
		t.Fatal("LoadFiles accepted a broken file")
	}
}

func simpleBSDL(entity, id string) string {
	return fmt.Sprintf(`
entity %s is
	attribute INSTRUCTION_LENGTH of %s : entity is 4;
	attribute INSTRUCTION_OPCODE of %s : entity is "BYPASS (1111), IDCODE (0001)";
	attribute IDCODE_REGISTER of %s : entity is "%s";
end %s;
`, entity, entity, entity, entity, id, entity)
}
