package graph

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
)

// CheckConnector reports whether a connector matching t exists from source
// to target.
func CheckConnector(ctx context.Context, s core.KnowledgeStore, t core.Type, source, target core.Addr) (bool, error) {
	res, err := s.Search(ctx, core.Pattern{Source: source, Type: t, Target: target})
	if err != nil {
		return false, err
	}
	return len(res) > 0, nil
}

// IsElementOf reports whether set contains el through a positive permanent arc.
func IsElementOf(ctx context.Context, s core.KnowledgeStore, set, el core.Addr) (bool, error) {
	return CheckConnector(ctx, s, core.VarPermPosArc, set, el)
}

// GenerateRoleRelation connects source to target with a membership arc and
// marks the arc with every given role relation. It returns the arc.
func GenerateRoleRelation(ctx context.Context, s core.KnowledgeStore, source, target core.Addr, relations ...core.Addr) (core.Addr, error) {
	arc, err := s.CreateConnector(ctx, core.ConstPermPosArc, source, target)
	if err != nil {
		return 0, err
	}
	for _, rel := range relations {
		if _, err := s.CreateConnector(ctx, core.ConstPermPosArc, rel, arc); err != nil {
			return 0, fmt.Errorf("mark role relation: %w", err)
		}
	}
	return arc, nil
}

// GenerateNoRoleRelation connects source to target with a common arc marked
// by relation. It returns the common arc.
func GenerateNoRoleRelation(ctx context.Context, s core.KnowledgeStore, source, target, relation core.Addr) (core.Addr, error) {
	arc, err := s.CreateConnector(ctx, core.ConstCommonArc, source, target)
	if err != nil {
		return 0, err
	}
	if _, err := s.CreateConnector(ctx, core.ConstPermPosArc, relation, arc); err != nil {
		return 0, fmt.Errorf("mark relation: %w", err)
	}
	return arc, nil
}

// SearchByRoleRelation returns the targets of membership arcs from source
// that carry relation, in creation order.
func SearchByRoleRelation(ctx context.Context, s core.KnowledgeStore, source, relation core.Addr) ([]core.Addr, error) {
	return searchMarked(ctx, s, core.VarPermPosArc, source, relation)
}

// SearchByNoRoleRelation returns the targets of common arcs from source that
// carry relation, in creation order.
func SearchByNoRoleRelation(ctx context.Context, s core.KnowledgeStore, source, relation core.Addr) ([]core.Addr, error) {
	return searchMarked(ctx, s, core.ConstCommonArc, source, relation)
}

func searchMarked(ctx context.Context, s core.KnowledgeStore, t core.Type, source, relation core.Addr) ([]core.Addr, error) {
	arcs, err := s.Search(ctx, core.Pattern{Source: source, Type: t})
	if err != nil {
		return nil, err
	}
	var res []core.Addr
	for _, arc := range arcs {
		ok, err := CheckConnector(ctx, s, core.VarPermPosArc, relation, arc.Connector)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, arc.Target)
		}
	}
	return res, nil
}

// GenerateStructure creates a structure node containing elements.
func GenerateStructure(ctx context.Context, s core.KnowledgeStore, elements ...core.Addr) (core.Addr, error) {
	st, err := s.CreateNode(ctx, core.ConstNodeStructure)
	if err != nil {
		return 0, err
	}
	for _, el := range elements {
		if _, err := s.CreateConnector(ctx, core.ConstPermPosArc, st, el); err != nil {
			return 0, fmt.Errorf("add structure element: %w", err)
		}
	}
	return st, nil
}

// StructureElements returns the members of a structure in insertion order.
// Nodes that are not structures yield core.ErrInvalidType.
func StructureElements(ctx context.Context, s core.KnowledgeStore, structure core.Addr) ([]core.Addr, error) {
	typ, err := s.ElementType(ctx, structure)
	if err != nil {
		return nil, err
	}
	if !typ.IsStructure() {
		return nil, fmt.Errorf("%w: %s is %s, not a structure", core.ErrInvalidType, structure, typ)
	}
	arcs, err := s.Search(ctx, core.Pattern{Source: structure, Type: core.VarPermPosArc})
	if err != nil {
		return nil, err
	}
	res := make([]core.Addr, 0, len(arcs))
	for _, arc := range arcs {
		res = append(res, arc.Target)
	}
	return res, nil
}

// GenerateLink creates a constant link holding content.
func GenerateLink(ctx context.Context, s core.KnowledgeStore, content core.Content) (core.Addr, error) {
	return s.CreateLink(ctx, core.ConstNodeLink, content)
}

// LinkInt reads integer content from a link. Other content types yield
// core.ErrInvalidType.
func LinkInt(ctx context.Context, s core.KnowledgeStore, link core.Addr) (int64, error) {
	c, err := s.LinkContent(ctx, link)
	if err != nil {
		return 0, err
	}
	v, ok := c.AsInt()
	if !ok {
		return 0, fmt.Errorf("%w: link %s holds %s content", core.ErrInvalidType, link, c.Type)
	}
	return v, nil
}
