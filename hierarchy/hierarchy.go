// Package hierarchy builds parent/children relationships between
// unstructured object bodies: object references, owner references,
// labelling, naming, and namespace adjustment.
package hierarchy

import (
	"fmt"

	"github.com/spf13/cast"
)

// Body is an unstructured object body as received from a watch stream.
type Body = map[string]any

// APIVersion returns the api version of a body, tolerating both the wire
// spelling and the snake_case spelling some client layers produce.
func APIVersion(body Body) string {
	if v, ok := body["apiVersion"]; ok {
		return cast.ToString(v)
	}
	return cast.ToString(body["api_version"])
}

func metadata(body Body) Body {
	meta, ok := body["metadata"].(Body)
	if !ok {
		meta = Body{}
		body["metadata"] = meta
	}
	return meta
}

// ObjectReference constructs a reference to the object, as used in events
// and cross-object links.
func ObjectReference(body Body) Body {
	meta := cast.ToStringMap(body["metadata"])
	return Body{
		"apiVersion": APIVersion(body),
		"kind":       cast.ToString(body["kind"]),
		"name":       cast.ToString(meta["name"]),
		"uid":        cast.ToString(meta["uid"]),
		"namespace":  cast.ToString(meta["namespace"]),
	}
}

// OwnerReference constructs the structure that links children objects to
// this object as their controlling parent, so the cluster's garbage
// collector cleans the children up with it.
func OwnerReference(body Body) Body {
	meta := cast.ToStringMap(body["metadata"])
	return Body{
		"controller":         true,
		"blockOwnerDeletion": true,
		"apiVersion":         APIVersion(body),
		"kind":               cast.ToString(body["kind"]),
		"name":               cast.ToString(meta["name"]),
		"uid":                cast.ToString(meta["uid"]),
	}
}

// AppendOwnerReference adds the owner to each object's ownerReferences,
// unless a reference with the same uid is already there.
func AppendOwnerReference(objs []Body, owner Body) {
	ref := OwnerReference(owner)
	uid := cast.ToString(ref["uid"])
	for _, obj := range objs {
		meta := metadata(obj)
		refs := cast.ToSlice(meta["ownerReferences"])
		exists := false
		for _, r := range refs {
			if cast.ToString(cast.ToStringMap(r)["uid"]) == uid {
				exists = true
				break
			}
		}
		if !exists {
			refs = append(refs, ref)
		}
		meta["ownerReferences"] = refs
	}
}

// RemoveOwnerReference removes any reference to the owner (matched by uid)
// from each object's ownerReferences.
func RemoveOwnerReference(objs []Body, owner Body) {
	uid := cast.ToString(OwnerReference(owner)["uid"])
	for _, obj := range objs {
		meta := metadata(obj)
		refs := cast.ToSlice(meta["ownerReferences"])
		kept := refs[:0]
		for _, r := range refs {
			if cast.ToString(cast.ToStringMap(r)["uid"]) != uid {
				kept = append(kept, r)
			}
		}
		meta["ownerReferences"] = kept
	}
}

// Label applies the labels to each object. Existing values win unless force
// is set.
func Label(objs []Body, labels map[string]string, force bool) {
	for _, obj := range objs {
		meta := metadata(obj)
		objLabels, ok := meta["labels"].(Body)
		if !ok {
			objLabels = Body{}
			meta["labels"] = objLabels
		}
		for key, val := range labels {
			if _, exists := objLabels[key]; force || !exists {
				objLabels[key] = val
			}
		}
	}
}

// HarmonizeNaming names the objects after their parent. In strict mode the
// name is used as-is; otherwise it becomes a generateName prefix and the
// final name is assigned remotely. Objects that already carry a name keep it.
func HarmonizeNaming(objs []Body, name string, strict bool) {
	for _, obj := range objs {
		meta := metadata(obj)
		if _, ok := meta["name"]; ok {
			continue
		}
		if strict {
			meta["name"] = name
		} else if _, ok := meta["generateName"]; !ok {
			meta["generateName"] = fmt.Sprintf("%s-", name)
		}
	}
}

// AdjustNamespace puts the objects into the namespace, keeping any
// namespace already set. Children conventionally live with their owner.
func AdjustNamespace(objs []Body, namespace string) {
	for _, obj := range objs {
		meta := metadata(obj)
		if _, ok := meta["namespace"]; !ok {
			meta["namespace"] = namespace
		}
	}
}

// Adopt makes the objects proper children of the owner: owned by it, named
// after it, in its namespace, carrying its labels.
func Adopt(objs []Body, owner Body) {
	ownerMeta := cast.ToStringMap(owner["metadata"])
	AppendOwnerReference(objs, owner)
	HarmonizeNaming(objs, cast.ToString(ownerMeta["name"]), false)
	AdjustNamespace(objs, cast.ToString(ownerMeta["namespace"]))
	Label(objs, cast.ToStringMapString(ownerMeta["labels"]), false)
}
