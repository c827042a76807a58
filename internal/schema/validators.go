package schema

import "fmt"

// Dimensions lists the understanding dimensions in their canonical order.
var Dimensions = []string{
	"project_type",
	"scope_direction",
	"space_dimensions",
	"condition",
	"materials_preference",
	"budget_framing",
	"timeline",
	"constraints",
}

// ValidateUnderstandingUpdate checks an update_understanding payload.
func ValidateUnderstandingUpdate(v any) Result {
	obj, ok := object(v)
	if !ok {
		return invalid("", "Invalid JSON object")
	}
	if r, ok := requireFields(obj, "", "understanding", "dimensions_resolved", "delta", "delta_reason", "next_unresolved"); !ok {
		return r
	}

	if n, ok := number(obj["understanding"]); !ok || n < 0 || n > 100 {
		return invalid("understanding", "understanding must be a number between 0-100")
	}

	dims, ok := object(obj["dimensions_resolved"])
	if !ok {
		return invalid("dimensions_resolved", "dimensions_resolved must be an object")
	}
	for _, d := range Dimensions {
		if !boolean(dims[d]) {
			return invalid("dimensions_resolved."+d, "dimensions_resolved.%s must be boolean", d)
		}
	}

	if _, ok := number(obj["delta"]); !ok {
		return invalid("delta", "delta must be a number")
	}
	if !str(obj["delta_reason"]) {
		return invalid("delta_reason", "delta_reason must be a string")
	}
	if !str(obj["next_unresolved"]) {
		return invalid("next_unresolved", "next_unresolved must be a string")
	}
	if flag, present := obj["cost_flag"]; present && flag != nil && !str(flag) {
		return invalid("cost_flag", "cost_flag must be string or null")
	}
	return valid()
}

// ValidateCostEstimate checks a generate_estimate payload.
func ValidateCostEstimate(v any) Result {
	obj, ok := object(v)
	if !ok {
		return invalid("", "Invalid JSON object")
	}
	if r, ok := requireFields(obj, "", "line_items", "total_low", "total_high", "confidence", "unresolved_areas", "regional_note"); !ok {
		return r
	}

	items, ok := obj["line_items"].([]any)
	if !ok {
		return invalid("line_items", "line_items must be an array")
	}
	for i, raw := range items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		item, ok := object(raw)
		if !ok {
			return invalid(prefix, "%s must be an object", prefix)
		}
		if r, ok := requireFields(item, prefix, "item", "category", "low", "high", "assumed"); !ok {
			return r
		}
		if !str(item["item"]) {
			return invalid(prefix+".item", "%s.item must be string", prefix)
		}
		if !str(item["category"]) {
			return invalid(prefix+".category", "%s.category must be string", prefix)
		}
		if _, ok := number(item["low"]); !ok {
			return invalid(prefix+".low", "%s.low must be number", prefix)
		}
		if _, ok := number(item["high"]); !ok {
			return invalid(prefix+".high", "%s.high must be number", prefix)
		}
		if !boolean(item["assumed"]) {
			return invalid(prefix+".assumed", "%s.assumed must be boolean", prefix)
		}
		if notes, present := item["notes"]; present && !str(notes) {
			return invalid(prefix+".notes", "%s.notes must be string", prefix)
		}
	}

	if _, ok := number(obj["total_low"]); !ok {
		return invalid("total_low", "total_low must be number")
	}
	if _, ok := number(obj["total_high"]); !ok {
		return invalid("total_high", "total_high must be number")
	}

	switch obj["confidence"] {
	case "low", "medium", "high":
	default:
		return invalid("confidence", "confidence must be: low, medium, or high")
	}

	areas, ok := obj["unresolved_areas"].([]any)
	if !ok {
		return invalid("unresolved_areas", "unresolved_areas must be an array")
	}
	for _, a := range areas {
		if !str(a) {
			return invalid("unresolved_areas", "unresolved_areas items must be strings")
		}
	}

	if !str(obj["regional_note"]) {
		return invalid("regional_note", "regional_note must be string")
	}
	return valid()
}

// ValidateCrossProjectAnalysis checks a cross-project analysis payload. Every
// project id it references must appear in allowed.
func ValidateCrossProjectAnalysis(v any, allowed []string) Result {
	obj, ok := object(v)
	if !ok {
		return invalid("", "Invalid JSON object")
	}
	if r, ok := requireFields(obj, "", "sequenced_projects", "bundle_groups", "quick_wins", "total_cost_range", "optimization_summary"); !ok {
		return r
	}

	seq, ok := obj["sequenced_projects"].([]any)
	if !ok {
		return invalid("sequenced_projects", "sequenced_projects must be an array")
	}
	for i, raw := range seq {
		prefix := fmt.Sprintf("sequenced_projects[%d]", i)
		proj, ok := object(raw)
		if !ok {
			return invalid(prefix, "%s must be an object", prefix)
		}
		if r, ok := requireFields(proj, prefix, "project_id", "priority_score", "recommended_sequence", "reasoning"); !ok {
			return r
		}
		if !contains(allowed, proj["project_id"]) {
			return invalid(prefix+".project_id", "%s.project_id not in valid projects", prefix)
		}
		if n, ok := integer(proj["priority_score"]); !ok || n < 1 || n > 100 {
			return invalid(prefix+".priority_score", "%s.priority_score must be integer 1-100", prefix)
		}
		if n, ok := integer(proj["recommended_sequence"]); !ok || n < 1 {
			return invalid(prefix+".recommended_sequence", "%s.recommended_sequence must be positive integer", prefix)
		}
		if !str(proj["reasoning"]) {
			return invalid(prefix+".reasoning", "%s.reasoning must be string", prefix)
		}
	}

	bundles, ok := obj["bundle_groups"].([]any)
	if !ok {
		return invalid("bundle_groups", "bundle_groups must be an array")
	}
	for i, raw := range bundles {
		prefix := fmt.Sprintf("bundle_groups[%d]", i)
		bundle, ok := object(raw)
		if !ok {
			return invalid(prefix, "%s must be an object", prefix)
		}
		if r, ok := requireFields(bundle, prefix, "bundle_name", "project_ids", "estimated_savings_percent", "reasoning"); !ok {
			return r
		}
		ids, ok := bundle["project_ids"].([]any)
		if !ok {
			return invalid(prefix+".project_ids", "%s.project_ids must be array", prefix)
		}
		for _, id := range ids {
			if !contains(allowed, id) {
				return invalid(prefix+".project_ids", "%s.project_ids contains invalid project_id", prefix)
			}
		}
		if n, ok := number(bundle["estimated_savings_percent"]); !ok || n < 0 || n > 100 {
			return invalid(prefix+".estimated_savings_percent", "%s.estimated_savings_percent must be 0-100", prefix)
		}
		if !str(bundle["bundle_name"]) {
			return invalid(prefix+".bundle_name", "%s.bundle_name must be string", prefix)
		}
		if !str(bundle["reasoning"]) {
			return invalid(prefix+".reasoning", "%s.reasoning must be string", prefix)
		}
	}

	wins, ok := obj["quick_wins"].([]any)
	if !ok {
		return invalid("quick_wins", "quick_wins must be an array")
	}
	for _, id := range wins {
		if !contains(allowed, id) {
			return invalid("quick_wins", "quick_wins contains invalid project_id")
		}
	}

	costRange, ok := object(obj["total_cost_range"])
	if !ok {
		return invalid("total_cost_range", "total_cost_range must be object")
	}
	if _, ok := number(costRange["low"]); !ok {
		return invalid("total_cost_range.low", "total_cost_range.low must be number")
	}
	if _, ok := number(costRange["high"]); !ok {
		return invalid("total_cost_range.high", "total_cost_range.high must be number")
	}

	if !str(obj["optimization_summary"]) {
		return invalid("optimization_summary", "optimization_summary must be string")
	}
	return valid()
}
