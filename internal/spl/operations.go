package spl

import (
	"fmt"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal/identifier"
)

// NDCCodeSystem is the OID of the NDC code system in SPL code elements.
const NDCCodeSystem = "2.16.840.1.113883.6.69"

const (
	OpManufacture    = "Manufacture"
	OpAPIManufacture = "API Manufacture"
	OpAnalysis       = "Analysis"
	OpPack           = "Pack"
	OpLabel          = "Label"
	OpRepack         = "Repack"
	OpRelabel        = "Relabel"
	OpSterilize      = "Sterilize"

	// OpInferred stands in when an establishment was matched but no operation
	// could be read for it.
	OpInferred = "Manufacture (inferred, unconfirmed)"
)

// OperationCodes maps SPL business operation codes to operation labels.
var OperationCodes = map[string]string{
	"C43360": OpManufacture,
	"C82401": OpManufacture,
	"C43359": OpManufacture,
	"C25391": OpAnalysis,
	"C84731": OpPack,
	"C25392": OpLabel,
	"C48482": OpRepack,
	"C73606": OpRelabel,
	"C84732": OpSterilize,
	"C25394": OpAPIManufacture,
}

// operationKeywords is checked in order; longer words come before the words
// they contain.
var operationKeywords = []struct {
	keyword string
	op      string
}{
	{"repack", OpRepack},
	{"relabel", OpRelabel},
	{"manufacture", OpManufacture},
	{"analysis", OpAnalysis},
	{"steriliz", OpSterilize},
	{"label", OpLabel},
	{"pack", OpPack},
}

// Performance is one performance element of a block: the operation code found
// in it and every NDC code it names.
type Performance struct {
	OperationCode string
	NDCs          []string
}

// BusinessOperation is one businessOperation element of a block.
type BusinessOperation struct {
	DisplayName string
	Codes       []string
}

// Block is one establishment section of a label document.
type Block struct {
	Name               string
	Location           string
	Content            string
	Performances       []Performance
	BusinessOperations []BusinessOperation
}

// Contains reports whether number occurs in the block's text or attributes.
func (b Block) Contains(number string) bool {
	return number != "" && strings.Contains(b.Content, number)
}

// Operations is the operation list of one establishment and the quotes backing
// it.
type Operations struct {
	Labels []string
	Quotes []string
}

func (o Operations) Empty() bool { return len(o.Labels) == 0 }

func (o *Operations) add(label, quote string) {
	for _, l := range o.Labels {
		if l == label {
			return
		}
	}
	o.Labels = append(o.Labels, label)
	o.Quotes = append(o.Quotes, quote)
}

// dropPlainManufacture removes Manufacture when API Manufacture is present.
func (o *Operations) dropPlainManufacture() {
	hasAPI := false
	for _, l := range o.Labels {
		if l == OpAPIManufacture {
			hasAPI = true
		}
	}
	if !hasAPI {
		return
	}
	labels, quotes := o.Labels[:0], o.Quotes[:0]
	for i, l := range o.Labels {
		if l == OpManufacture {
			continue
		}
		labels = append(labels, l)
		quotes = append(quotes, o.Quotes[i])
	}
	o.Labels, o.Quotes = labels, quotes
}

// NDCOperations keeps the operations of performances that name an NDC whose
// variant set intersects the target's.
func NDCOperations(b Block, target identifier.Variants, targetNDC, establishment string) Operations {
	var ops Operations
	for _, perf := range b.Performances {
		label, ok := OperationCodes[perf.OperationCode]
		if !ok {
			continue
		}
		for _, ndc := range perf.NDCs {
			if identifier.ExpandNDC(ndc).Intersects(target) {
				ops.add(label, fmt.Sprintf("Found %s operation for NDC %s in %s", label, targetNDC, establishment))
				break
			}
		}
	}
	ops.dropPlainManufacture()
	return ops
}

// GeneralOperations reads business operations without any NDC filter, by
// display name first and by code second.
func GeneralOperations(b Block, establishment string) Operations {
	var ops Operations
	for _, bo := range b.BusinessOperations {
		label := operationFromDisplayName(bo.DisplayName)
		if label == "" {
			for _, code := range bo.Codes {
				if l, ok := OperationCodes[code]; ok {
					label = l
					break
				}
			}
		}
		if label != "" {
			ops.add(label, fmt.Sprintf("General operation (not NDC-specific): Found %s operation in %s", label, establishment))
		}
	}
	ops.dropPlainManufacture()
	return ops
}

func operationFromDisplayName(name string) string {
	name = strings.ToLower(name)
	if name == "" {
		return ""
	}
	if strings.Contains(name, "api") && strings.Contains(name, "manufacture") {
		return OpAPIManufacture
	}
	for _, k := range operationKeywords {
		if strings.Contains(name, k.keyword) {
			return k.op
		}
	}
	return ""
}
