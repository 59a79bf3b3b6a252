// Package imagesearch wraps the stock image search collaborator. Results come
// back as scored candidates so the generation stage can rank them against
// generated alternatives under one selection rule.
package imagesearch
