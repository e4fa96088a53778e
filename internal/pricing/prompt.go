package pricing

import (
	"fmt"
	"sort"
	"strings"
)

func buildPrompt(in Input, locality string) string {
	var details strings.Builder
	keys := make([]string, 0, len(in.ConditionDetails))
	for k := range in.ConditionDetails {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&details, "  - %s: %s\n", k, in.ConditionDetails[k])
	}
	if details.Len() == 0 {
		details.WriteString("  - none provided\n")
	}

	return fmt.Sprintf(`
You are a pricing assistant for an e-waste recycling marketplace.
Estimate what a local recycler would pay for the item below, in Indian Rupees.

**Item:**
- Waste type: %s
- Category: %s
- Brand: %s
- Model: %s
- Quantity: %d
- Condition summary: %s
- Condition details:
%s- Description: %s

**Locality:** %s

Respond in JSON only, with exactly these fields:
{
  "price": 0,           // total price for the whole quantity, number
  "conditionScore": 0,  // 0-100
  "confidence": 0,      // 0-100, how sure you are
  "explanation": "..."  // one or two sentences, under 500 characters
}
`, in.WasteType, orUnknown(in.Category), orUnknown(in.Brand), orUnknown(in.Model), max(in.Quantity, 1),
		orUnknown(in.ConditionSummary), details.String(), orUnknown(in.Description), orUnknown(locality))
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
