package translate

import (
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"

	"github.com/goodieshq/bitbridge/internal/protocol"
)

func TestParseTable(t *testing.T) {
	data, err := os.ReadFile("testdata/translations.json")
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}

	tbl, err := ParseTable(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Version != 2 {
		t.Fatalf("version %v, want 2", tbl.Version)
	}
	if got := tbl.Names(); !reflect.DeepEqual(got, []string{"carbon", "energy", "weather"}) {
		t.Fatalf("services %v", got)
	}

	energy, ok := tbl.Lookup("energy")
	if !ok || energy.Get == nil || energy.Post != nil {
		t.Fatalf("unexpected energy entry: %+v", energy)
	}
	total := energy.Get.Endpoint["total"]
	if total.JSPath != ".value" {
		t.Fatalf("jspath %q", total.JSPath)
	}
	if got := total.Defaults(); !reflect.DeepEqual(got, map[string]string{"unit": "kilowatt_hour", "periods_ago": "0"}) {
		t.Fatalf("defaults %v", got)
	}
}

func TestParseTableErrors(t *testing.T) {
	if _, err := ParseTable([]byte(`{"energy": {}}`)); !errors.Is(err, ErrMissingVersion) {
		t.Fatalf("expected ErrMissingVersion, got %v", err)
	}
	if _, err := ParseTable([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseTable([]byte(`{"version": 1, "energy": 5}`)); err == nil {
		t.Fatalf("expected service parse error")
	}
}

func TestServiceTableMethod(t *testing.T) {
	st := ServiceTable{Get: &Method{BaseURL: "g"}, Post: &Method{BaseURL: "p"}}

	if m, ok := st.Method(protocol.RequestGet); !ok || m.BaseURL != "g" {
		t.Fatalf("GET selected %+v", m)
	}
	if m, ok := st.Method(protocol.RequestPost | protocol.StatusAck); !ok || m.BaseURL != "p" {
		t.Fatalf("POST selected %+v", m)
	}
	if _, ok := st.Method(protocol.RequestHello); ok {
		t.Fatalf("HELLO should not select a method")
	}
	if _, ok := (ServiceTable{Get: st.Get}).Method(protocol.RequestPost); ok {
		t.Fatalf("missing POST should not select a method")
	}
}

func TestStoreReplaceIsVersionGated(t *testing.T) {
	s := NewStore()
	if s.Load() != nil {
		t.Fatalf("new store should be empty")
	}

	v2 := &Table{Version: 2}
	if !s.Replace(v2) {
		t.Fatalf("first table should install")
	}
	if s.Replace(&Table{Version: 2}) {
		t.Fatalf("same version should not replace")
	}
	if s.Replace(&Table{Version: 1}) {
		t.Fatalf("older version should not replace")
	}
	if s.Load() != v2 {
		t.Fatalf("store lost current table")
	}
	if !s.Replace(&Table{Version: 3}) || s.Load().Version != 3 {
		t.Fatalf("newer version should replace")
	}
	if s.Replace(nil) {
		t.Fatalf("nil should not replace")
	}
}

func TestStoreConcurrentReplace(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s.Replace(&Table{Version: float64(v)})
		}(i)
	}
	wg.Wait()

	if got := s.Load().Version; got != 50 {
		t.Fatalf("final version %v, want 50", got)
	}
}
