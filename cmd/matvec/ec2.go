// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/matvec/matvecconfig"

	// Registered so that the written profile shows their defaults.
	_ "github.com/grailbio/base/config/aws"
	_ "github.com/grailbio/bigmachine/ec2system"
)

func setupEC2Usage(flags *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `usage: matvec setup-ec2 [-securitygroup name]

Command setup-ec2 sets up a security group so that matvec workers can
run on AWS EC2, and writes the resulting configuration to `, matvecconfig.Path, `.
An existing configuration is modified in place. If a security group
with the provided name already exists, it is reused.

The security group allows all traffic within the default VPC, all
outbound traffic, and inbound SSH and HTTPS connections.

The flags are:
`)
	flags.PrintDefaults()
	os.Exit(2)
}

func setupEC2(args []string) {
	var (
		flags         = flag.NewFlagSet("matvec setup-ec2", flag.ExitOnError)
		securityGroup = flags.String("securitygroup", "matvec", "name of the security group to set up")
	)
	flags.Usage = func() { setupEC2Usage(flags) }
	must.Nil(flags.Parse(args))
	if flags.NArg() != 0 {
		flags.Usage()
	}

	profile := config.New()
	f, err := os.Open(matvecconfig.Path)
	if err == nil {
		must.Nil(profile.Parse(f))
		must.Nil(f.Close())
	} else {
		must.True(os.IsNotExist(err), err)
	}
	if region, ok := profile.Get("aws/env.region"); ok && len(region) > 0 {
		must.Nil(profile.Set("bigmachine/ec2system.default-region", strings.Trim(region, `"`)))
	}
	if v, ok := profile.Get("bigmachine/ec2system.security-group"); ok && v != `""` {
		log.Print("ec2 security group ", v, " already configured")
	} else {
		sess, err := session.NewSession()
		must.Nil(err, "setting up AWS session")
		id, err := findOrCreateSecurityGroup(ec2.New(sess), *securityGroup)
		must.Nil(err, "setting up security group")
		must.Nil(profile.Set("bigmachine/ec2system.security-group", id))
		log.Print("using security group ", id)
	}
	must.Nil(profile.Set("matvec.system", "bigmachine/ec2system"))
	must.Nil(profile.Set("bigmachine/ec2system.instance", "m5.xlarge"))

	var buf bytes.Buffer
	must.Nil(profile.PrintTo(&buf))
	must.Nil(os.MkdirAll(filepath.Dir(matvecconfig.Path), 0777))
	tmp := matvecconfig.Path + ".setup-ec2"
	must.Nil(ioutil.WriteFile(tmp, buf.Bytes(), 0666))
	must.Nil(os.Rename(tmp, matvecconfig.Path))
	log.Print("wrote configuration to ", matvecconfig.Path)
}

// findOrCreateSecurityGroup returns the ID of the security group with
// the provided name, creating it in the default VPC if it does not
// exist.
func findOrCreateSecurityGroup(svc ec2iface.EC2API, name string) (string, error) {
	describe, err := svc.DescribeSecurityGroups(&ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{{
			Name:   aws.String("group-name"),
			Values: []*string{aws.String(name)},
		}},
	})
	if err != nil {
		return "", errors.E(fmt.Sprintf("query security group %s", name), err)
	}
	if len(describe.SecurityGroups) > 0 {
		id := aws.StringValue(describe.SecurityGroups[0].GroupId)
		log.Printf("found existing security group %s", id)
		return id, nil
	}
	vpcs, err := svc.DescribeVpcs(&ec2.DescribeVpcsInput{
		Filters: []*ec2.Filter{{
			Name:   aws.String("isDefault"),
			Values: []*string{aws.String("true")},
		}},
	})
	if err != nil {
		return "", errors.E("retrieve default VPC", err)
	}
	switch len(vpcs.Vpcs) {
	case 0:
		return "", errors.E(errors.NotExist, "AWS account has no default VPC and requires manual setup")
	case 1:
	default:
		return "", errors.E(errors.Invalid, "AWS account has multiple default VPCs and requires manual setup")
	}
	vpc := vpcs.Vpcs[0]
	log.Printf("creating security group %s in default VPC %s", name, aws.StringValue(vpc.VpcId))
	created, err := svc.CreateSecurityGroup(&ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("security group created by matvec setup-ec2"),
		VpcId:       vpc.VpcId,
	})
	if err != nil {
		return "", errors.E(fmt.Sprintf("create security group %s", name), err)
	}
	id := aws.StringValue(created.GroupId)
	_, err = svc.AuthorizeSecurityGroupIngress(&ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(id),
		IpPermissions: []*ec2.IpPermission{
			// Internal traffic.
			{
				IpProtocol: aws.String("-1"),
				IpRanges:   []*ec2.IpRange{{CidrIp: vpc.CidrBlock}},
				FromPort:   aws.Int64(0),
				ToPort:     aws.Int64(0),
			},
			// SSH.
			{
				IpProtocol: aws.String("tcp"),
				IpRanges:   []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				FromPort:   aws.Int64(22),
				ToPort:     aws.Int64(22),
			},
			// Bigmachine RPC.
			{
				IpProtocol: aws.String("tcp"),
				IpRanges:   []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				FromPort:   aws.Int64(443),
				ToPort:     aws.Int64(443),
			},
		},
	})
	if err != nil {
		return "", errors.E(fmt.Sprintf("authorize ingress for security group %s", id), err)
	}
	_, err = svc.CreateTags(&ec2.CreateTagsInput{
		Resources: []*string{aws.String(id)},
		Tags: []*ec2.Tag{
			{Key: aws.String("matvec-sg"), Value: aws.String("true")},
			{Key: aws.String("Name"), Value: aws.String(name)},
		},
	})
	if err != nil {
		log.Error.Printf("tag security group %s: %v", id, err)
	}
	return id, nil
}
