package spl

import (
	"testing"

	"github.com/ACF100/ndc-location-mapper/internal/registry"
)

func testRegistry(t *testing.T) *registry.Index {
	t.Helper()
	idx, report := registry.BuildIndex(registry.Table{
		Header: []string{"FEI_NUMBER", "DUNS_NUMBER", "FIRM_NAME", "ADDRESS"},
		Rows: [][]string{
			{"3004568091", "", "Acme Corp", "Acme Sterile Manufacturing, Boston, MA, USA"},
			{"1234567", "", "BETA PHARMA LABORATORIES INC", "Beta Plant, 9 Elm Rd, Basel, Switzerland"},
			{"", "081234567", "Delta Holdings", "Delta Plant, 1 Road, Cork, Ireland"},
		},
	})
	if report.Empty() {
		t.Fatal("test registry is empty")
	}
	return idx
}

func labelDoc(body string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<document xmlns="urn:hl7-org:v3">
` + body + `
</document>
`)
}

func author(id, name, inner string) string {
	return `<author>
  <assignedEntity>
    <representedOrganization>
      <id extension="` + id + `" root="1.3.6.1.4.1.519.1"/>
      <name>` + name + `</name>
` + inner + `
    </representedOrganization>
  </assignedEntity>
</author>`
}

func establishment(id, name, ops string) string {
	return `<assignedEntity>
  <assignedOrganization>
    <id extension="` + id + `" root="1.3.6.1.4.1.519.1"/>
    <name>` + name + `</name>
  </assignedOrganization>
` + ops + `
</assignedEntity>`
}

func performance(opCode, ndc string) string {
	return `<performance>
  <actDefinition>
    <code code="` + opCode + `" codeSystem="2.16.840.1.113883.3.26.1.1" displayName="OPERATION"/>
    <product><manufacturedProduct><manufacturedMaterialKind>
      <code code="` + ndc + `" codeSystem="2.16.840.1.113883.6.69"/>
    </manufacturedMaterialKind></manufacturedProduct></product>
  </actDefinition>
</performance>`
}

func businessOperation(code, display string) string {
	return `<businessOperation><code code="` + code + `" codeSystem="2.16.840.1.113883.3.26.1.1" displayName="` + display + `"/></businessOperation>`
}
