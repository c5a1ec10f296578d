// Command xfatx inspects and extracts Xbox 360 FATX partition images and
// SVOD content packages.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/halprin/xfatx/blockdev"
	"github.com/halprin/xfatx/fatx"
	"github.com/halprin/xfatx/multifileio"
	"github.com/halprin/xfatx/rehash"
	"github.com/halprin/xfatx/svod"
	"github.com/halprin/xfatx/xcontent"
	"github.com/halprin/xfatx/xcontent/catalog"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Usage: "Inspect and extract Xbox 360 FATX partitions and SVOD packages",
		Commands: []*cli.Command{
			{
				Name:      "fatx-ls",
				Usage:     "List a directory inside a FATX partition image",
				ArgsUsage: "IMAGE PARTITION_OFFSET PARTITION_SIZE [PATH]",
				Action:    fatxListAction,
			},
			{
				Name:      "fatx-extract",
				Usage:     "Extract one file out of a FATX partition image",
				ArgsUsage: "IMAGE PARTITION_OFFSET PARTITION_SIZE SRC_PATH DEST_PATH",
				Action:    fatxExtractAction,
			},
			{
				Name:      "fatx-extract-all",
				Usage:     "Extract every file in a FATX partition image into a directory",
				ArgsUsage: "IMAGE PARTITION_OFFSET PARTITION_SIZE DEST_DIR",
				Action:    fatxExtractAllAction,
			},
			{
				Name:      "svod-ls",
				Usage:     "List a directory inside an SVOD package",
				ArgsUsage: "ROOT_DESCRIPTOR [PATH]",
				Action:    svodListAction,
			},
			{
				Name:      "svod-extract",
				Usage:     "Extract one file out of an SVOD package",
				ArgsUsage: "ROOT_DESCRIPTOR SRC_PATH DEST_PATH",
				Action:    svodExtractAction,
			},
			{
				Name:      "svod-extract-all",
				Usage:     "Extract every file in an SVOD package into a directory",
				ArgsUsage: "ROOT_DESCRIPTOR DEST_DIR",
				Action:    svodExtractAllAction,
			},
			{
				Name:      "svod-rehash",
				Usage:     "Rebuild an SVOD package's hash tree and header hash in place",
				ArgsUsage: "ROOT_DESCRIPTOR",
				Action:    svodRehashAction,
			},
			{
				Name:      "xcontent-inspect",
				Usage:     "Print an XContent header's fields",
				ArgsUsage: "ROOT_DESCRIPTOR",
				Action:    xcontentInspectAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// mountFatxVolume opens imagePath and mounts the FATX partition occupying
// [offset, offset+size) within it. The caller owns the returned file and
// must close it once done with the volume.
func mountFatxVolume(imagePath string, offset, size int64) (*fatx.Volume, *os.File, error) {
	f, err := os.OpenFile(imagePath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, err
	}

	totalBlocks := uint32((offset + size) / fatx.SectorSize)
	device := blockdev.New(f, fatx.SectorSize, totalBlocks, 0)

	volume, err := fatx.Mount(device, offset, size)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return volume, f, nil
}

func parseOffsetSize(c *cli.Context, offsetArg, sizeArg int) (int64, int64, error) {
	offset, err := strconv.ParseInt(c.Args().Get(offsetArg), 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad partition offset: %w", err)
	}
	size, err := strconv.ParseInt(c.Args().Get(sizeArg), 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad partition size: %w", err)
	}
	return offset, size, nil
}

func fatxListAction(c *cli.Context) error {
	offset, size, err := parseOffsetSize(c, 1, 2)
	if err != nil {
		return err
	}
	dirPath := c.Args().Get(3)
	if dirPath == "" {
		dirPath = "/"
	}

	volume, f, err := mountFatxVolume(c.Args().Get(0), offset, size)
	if err != nil {
		return err
	}
	defer f.Close()

	dir, err := fatx.Lookup(volume.Root, dirPath)
	if err != nil {
		return err
	}
	children, err := fatx.ListDirectory(dir)
	if err != nil {
		return err
	}

	for _, child := range children {
		kind := "file"
		if child.IsDirectory() {
			kind = "dir"
		}
		fmt.Printf("%-4s %10d  %s\n", kind, child.FileSize, child.Name)
	}
	return nil
}

func extractFatxFile(entry *fatx.FatxFileEntry, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return fatx.SaveFile(entry, out, func(done, total int) {
		log.Printf("%s: extracted range %d/%d", entry.Name, done, total)
	})
}

func fatxExtractAction(c *cli.Context) error {
	offset, size, err := parseOffsetSize(c, 1, 2)
	if err != nil {
		return err
	}
	srcPath := c.Args().Get(3)
	destPath := c.Args().Get(4)

	volume, f, err := mountFatxVolume(c.Args().Get(0), offset, size)
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := fatx.Lookup(volume.Root, srcPath)
	if err != nil {
		return err
	}
	if entry.IsDirectory() {
		return fmt.Errorf("%s is a directory", srcPath)
	}
	return extractFatxFile(entry, destPath)
}

// walkFatxDir mirrors dir's contents into destDir, recording one error per
// failed file instead of aborting the whole walk on the first problem.
func walkFatxDir(dir *fatx.FatxFileEntry, destDir string, result *error) {
	children, err := fatx.ListDirectory(dir)
	if err != nil {
		*result = multierror.Append(*result, err)
		return
	}

	for _, child := range children {
		childDest := filepath.Join(destDir, child.Name)

		if child.IsDirectory() {
			if err := os.MkdirAll(childDest, 0o755); err != nil {
				*result = multierror.Append(*result, err)
				continue
			}
			walkFatxDir(child, childDest, result)
			continue
		}

		if err := extractFatxFile(child, childDest); err != nil {
			*result = multierror.Append(*result, fmt.Errorf("%s: %w", child.Name, err))
		}
	}
}

func fatxExtractAllAction(c *cli.Context) error {
	offset, size, err := parseOffsetSize(c, 1, 2)
	if err != nil {
		return err
	}
	destDir := c.Args().Get(3)

	volume, f, err := mountFatxVolume(c.Args().Get(0), offset, size)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	var result error
	walkFatxDir(volume.Root, destDir, &result)
	return result
}

// mountSvodVolume reads the root descriptor and mounts the SVOD volume
// whose data files live alongside it, per svod.DataDirectory's convention.
func mountSvodVolume(rootDescriptorPath string) (*svod.Volume, multifileio.IndexableMultiFileIO, []byte, error) {
	rootBytes, err := os.ReadFile(rootDescriptorPath)
	if err != nil {
		return nil, nil, nil, err
	}

	files, err := multifileio.NewLocal(svod.DataDirectory(rootDescriptorPath))
	if err != nil {
		return nil, nil, nil, err
	}

	volume, err := svod.Mount(rootBytes, files, rootDescriptorPath)
	if err != nil {
		files.Close()
		return nil, nil, nil, err
	}
	return volume, files, rootBytes, nil
}

func svodListAction(c *cli.Context) error {
	dirPath := c.Args().Get(1)
	if dirPath == "" {
		dirPath = "/"
	}

	volume, files, _, err := mountSvodVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer files.Close()

	dir, err := svod.GetFileEntry(volume, dirPath)
	if err != nil {
		return err
	}
	children, err := svod.ListDirectory(volume, dir)
	if err != nil {
		return err
	}

	for _, child := range children {
		kind := "file"
		if child.IsDirectory() {
			kind = "dir"
		}
		fmt.Printf("%-4s %10d  %s\n", kind, child.Size, child.Name)
	}
	return nil
}

func extractSvodFile(v *svod.Volume, entry *svod.GdfxFileEntry, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	const chunkSize = 1 << 20
	view := svod.NewIO(v, entry)

	remaining := int64(entry.Size)
	for remaining > 0 {
		chunk := int64(chunkSize)
		if chunk > remaining {
			chunk = remaining
		}
		data, err := view.ReadBytes(int(chunk))
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		remaining -= chunk
	}
	return nil
}

func svodExtractAction(c *cli.Context) error {
	srcPath := c.Args().Get(1)
	destPath := c.Args().Get(2)

	volume, files, _, err := mountSvodVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer files.Close()

	entry, err := svod.GetFileEntry(volume, srcPath)
	if err != nil {
		return err
	}
	if entry.IsDirectory() {
		return fmt.Errorf("%s is a directory", srcPath)
	}
	return extractSvodFile(volume, entry, destPath)
}

func walkSvodDir(v *svod.Volume, dir *svod.GdfxFileEntry, destDir string, result *error) {
	children, err := svod.ListDirectory(v, dir)
	if err != nil {
		*result = multierror.Append(*result, err)
		return
	}

	for _, child := range children {
		childDest := filepath.Join(destDir, child.Name)

		if child.IsDirectory() {
			if err := os.MkdirAll(childDest, 0o755); err != nil {
				*result = multierror.Append(*result, err)
				continue
			}
			walkSvodDir(v, child, childDest, result)
			continue
		}

		if err := extractSvodFile(v, child, childDest); err != nil {
			*result = multierror.Append(*result, fmt.Errorf("%s: %w", child.Name, err))
		}
	}
}

func svodExtractAllAction(c *cli.Context) error {
	destDir := c.Args().Get(1)

	volume, files, _, err := mountSvodVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer files.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	var result error
	walkSvodDir(volume, volume.Root, destDir, &result)
	return result
}

func svodRehashAction(c *cli.Context) error {
	rootDescriptorPath := c.Args().Get(0)

	volume, files, rootBytes, err := mountSvodVolume(rootDescriptorPath)
	if err != nil {
		return err
	}
	defer files.Close()

	err = rehash.Run(volume, rootBytes, func(done, total int) {
		log.Printf("rehashed data file %d/%d", done, total)
	})
	if err != nil {
		return err
	}

	return os.WriteFile(rootDescriptorPath, rootBytes, 0o644)
}

func xcontentInspectAction(c *cli.Context) error {
	path := c.Args().Get(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	header, err := xcontent.Parse(data)
	if err != nil {
		return err
	}

	contentTypeName, _ := catalog.ContentTypeName(uint32(header.ContentType))
	titleName, _ := catalog.TitleName(header.TitleID)

	fmt.Printf("magic:             0x%08X\n", uint32(header.Magic))
	fmt.Printf("file_system:       %d\n", header.FileSystem)
	fmt.Printf("content_type:      0x%X %s\n", uint32(header.ContentType), contentTypeName)
	fmt.Printf("title_id:          0x%08X %s\n", header.TitleID, titleName)
	fmt.Printf("header_size:       0x%X\n", header.HeaderSize)
	fmt.Printf("header_hash:       %x\n", header.HeaderHash)
	fmt.Printf("enhanced_gdf:      %v\n", header.VolumeDescriptor.HasEnhancedGDFLayout())
	fmt.Printf("data_block_offset: %d\n", header.VolumeDescriptor.DataBlockOffset)
	fmt.Printf("root_hash:         %x\n", header.VolumeDescriptor.RootHash)
	return nil
}
